package profile

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDocument wraps all document validation failures.
var ErrInvalidDocument = errors.New("profile: invalid document")

var documentValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateDocument checks a client-submitted document before it is
// reconciled and persisted: struct tags via the validator, plus id
// uniqueness within the post and file lists. Post and file ids are never
// reused once created, so a duplicate always signals a broken client.
func ValidateDocument(doc Document) error {
	if err := documentValidator.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	seenPosts := make(map[string]struct{}, len(doc.Posts))
	for _, post := range doc.Posts {
		if _, duplicate := seenPosts[post.ID]; duplicate {
			return fmt.Errorf("%w: duplicate post id %q", ErrInvalidDocument, post.ID)
		}
		seenPosts[post.ID] = struct{}{}
	}

	seenFiles := make(map[string]struct{}, len(doc.Files))
	for _, file := range doc.Files {
		if _, duplicate := seenFiles[file.ID]; duplicate {
			return fmt.Errorf("%w: duplicate file id %q", ErrInvalidDocument, file.ID)
		}
		seenFiles[file.ID] = struct{}{}
	}

	return nil
}
