package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// SteamSummary is the trimmed player card the profile page renders.
type SteamSummary struct {
	PersonaName   string            `json:"personaname"`
	ProfileURL    string            `json:"profileurl"`
	AvatarFull    string            `json:"avatarfull"`
	PersonaState  int               `json:"personastate"`
	GameExtraInfo string            `json:"gameextrainfo,omitempty"`
	RecentGames   []json.RawMessage `json:"recentGames"`
}

type steamPlayerSummariesResponse struct {
	Response struct {
		Players []struct {
			PersonaName   string `json:"personaname"`
			ProfileURL    string `json:"profileurl"`
			AvatarFull    string `json:"avatarfull"`
			PersonaState  int    `json:"personastate"`
			GameExtraInfo string `json:"gameextrainfo"`
		} `json:"players"`
	} `json:"response"`
}

type steamRecentGamesResponse struct {
	Response struct {
		Games []json.RawMessage `json:"games"`
	} `json:"response"`
}

// SteamSummary fetches the player summary plus up to three recently
// played games. The recent-games call is best effort: its failure never
// fails the summary.
func (c *Client) SteamSummary(ctx context.Context, steamID, apiKey string) (SteamSummary, error) {
	summaryURL := fmt.Sprintf(
		"%s/ISteamUser/GetPlayerSummaries/v0002/?key=%s&steamids=%s",
		c.steamBaseURL, url.QueryEscape(apiKey), url.QueryEscape(steamID))
	body, err := c.get(ctx, summaryURL)
	if err != nil {
		return SteamSummary{}, err
	}

	var parsed steamPlayerSummariesResponse
	if err := decode(body, &parsed); err != nil {
		return SteamSummary{}, err
	}
	if len(parsed.Response.Players) == 0 {
		return SteamSummary{}, &UpstreamError{Status: http.StatusNotFound, Message: "player not found"}
	}

	player := parsed.Response.Players[0]
	summary := SteamSummary{
		PersonaName:   player.PersonaName,
		ProfileURL:    player.ProfileURL,
		AvatarFull:    player.AvatarFull,
		PersonaState:  player.PersonaState,
		GameExtraInfo: player.GameExtraInfo,
		RecentGames:   []json.RawMessage{},
	}

	recentURL := fmt.Sprintf(
		"%s/IPlayerService/GetRecentlyPlayedGames/v0001/?key=%s&steamid=%s&format=json",
		c.steamBaseURL, url.QueryEscape(apiKey), url.QueryEscape(steamID))
	recentBody, err := c.get(ctx, recentURL)
	if err != nil {
		c.logger.Warn("steam recent games fetch failed", zap.Error(err))
		return summary, nil
	}
	var recent steamRecentGamesResponse
	if err := decode(recentBody, &recent); err != nil {
		c.logger.Warn("steam recent games decode failed", zap.Error(err))
		return summary, nil
	}
	games := recent.Response.Games
	if len(games) > 3 {
		games = games[:3]
	}
	summary.RecentGames = games
	return summary, nil
}
