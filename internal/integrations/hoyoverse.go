package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Hoyoverse games with public profile lookups.
const (
	GameGenshin = "genshin"
	GameHSR     = "hsr"
)

type mihomoResponse struct {
	Detail string `json:"detail"`
	Player struct {
		Nickname         string `json:"nickname"`
		Level            int    `json:"level"`
		Signature        string `json:"signature"`
		WorldLevel       int    `json:"world_level"`
		AchievementCount int    `json:"achievement_count"`
		Avatar           struct {
			ID string `json:"id"`
		} `json:"avatar"`
	} `json:"player"`
	Characters json.RawMessage `json:"characters"`
}

// HoyoverseProfile fetches a public game profile by uid. Star Rail tries
// the mihomo API first and falls back to enka.network; Genshin goes
// straight to enka.network. Other games have no public lookup.
func (c *Client) HoyoverseProfile(ctx context.Context, game, uid string) ([]byte, error) {
	if game != GameGenshin && game != GameHSR {
		return nil, &UpstreamError{Status: http.StatusBadRequest, Message: "game not supported for auto-fetch"}
	}

	if game == GameHSR {
		if body, err := c.hsrFromMihomo(ctx, uid); err == nil {
			return body, nil
		} else {
			c.logger.Warn("mihomo lookup failed, falling back to enka", zap.Error(err), zap.String("uid", uid))
		}
	}

	base := c.enkaBaseURL + "/uid"
	if game == GameHSR {
		base = c.enkaBaseURL + "/hsr/uid"
	}
	body, err := c.get(ctx, fmt.Sprintf("%s/%s", base, url.PathEscape(uid)))
	if err != nil {
		if upstream, ok := IsUpstreamError(err); ok {
			switch upstream.Status {
			case http.StatusNotFound:
				return nil, &UpstreamError{Status: http.StatusNotFound, Message: "player not found or hidden"}
			case http.StatusTooManyRequests:
				return nil, &UpstreamError{Status: http.StatusTooManyRequests, Message: "rate limited"}
			}
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) hsrFromMihomo(ctx context.Context, uid string) ([]byte, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/sr_info/%s", c.mihomoBaseURL, url.PathEscape(uid)))
	if err != nil {
		return nil, err
	}
	var parsed mihomoResponse
	if err := decode(body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Detail != "" {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: parsed.Detail}
	}

	normalized := map[string]any{
		"uid":          uid,
		"game":         GameHSR,
		"nickname":     parsed.Player.Nickname,
		"level":        parsed.Player.Level,
		"signature":    parsed.Player.Signature,
		"worldLevel":   parsed.Player.WorldLevel,
		"achievements": parsed.Player.AchievementCount,
		"avatarUrl": fmt.Sprintf(
			"https://raw.githubusercontent.com/Mar-7th/StarRailRes/master/icon/character/%s.png",
			parsed.Player.Avatar.ID),
		"playerInfo": parsed.Player,
		"characters": parsed.Characters,
	}
	return json.Marshal(normalized)
}
