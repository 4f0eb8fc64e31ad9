package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/models"
)

// Validate checks the loaded catalog against the document schema and returns
// every issue found in document order. It never fails the load; an unloadable
// document yields a single issue describing the load error.
func (s *Store) Validate(ctx context.Context) []apperr.ValidationIssue {
	c, err := s.Load(ctx)
	if err != nil {
		return []apperr.ValidationIssue{{Message: err.Error()}}
	}

	var issues []apperr.ValidationIssue
	add := func(prefix string, err error) {
		issues = append(issues, flatten(prefix, err)...)
	}

	add("", validation.ValidateStruct(c,
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.LastUpdated, validation.Required),
	))

	known := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		add(fmt.Sprintf("sources[%d]", i), validation.ValidateStruct(src,
			validation.Field(&src.ID, validation.Required),
			validation.Field(&src.Name, validation.Required),
			validation.Field(&src.WebsiteURL, validation.Required),
		))
		if src.ID != "" {
			if _, dup := known[src.ID]; dup {
				issues = append(issues, apperr.ValidationIssue{
					Path:    fmt.Sprintf("sources[%d].id", i),
					Message: fmt.Sprintf("duplicate source id %q", src.ID),
				})
			}
			known[src.ID] = struct{}{}
		}
	}

	knownSource := validation.By(func(value interface{}) error {
		id, _ := value.(string)
		if _, ok := known[id]; !ok {
			return fmt.Errorf("unknown source %q", id)
		}
		return nil
	})

	seen := make(map[string]int, len(c.Sounds))
	for i := range c.Sounds {
		snd := &c.Sounds[i]
		add(fmt.Sprintf("sounds[%d]", i), validation.ValidateStruct(snd,
			validation.Field(&snd.ID, validation.Required),
			validation.Field(&snd.Name, validation.Required),
			validation.Field(&snd.SourceID, validation.Required, knownSource),
			validation.Field(&snd.Category, validation.Required),
			validation.Field(&snd.AudioURL, validation.Required),
			validation.Field(&snd.AudioFormat, validation.Required,
				validation.In(models.FormatWAV, models.FormatMP3).Error("must be wav or mp3")),
			validation.Field(&snd.Duration, validation.Required),
		))
		if snd.ID == "" {
			continue
		}
		if first, dup := seen[snd.ID]; dup {
			issues = append(issues, apperr.ValidationIssue{
				Path:    fmt.Sprintf("sounds[%d].id", i),
				Message: fmt.Sprintf("duplicate sound id %q (first at sounds[%d])", snd.ID, first),
			})
			continue
		}
		seen[snd.ID] = i
	}

	return issues
}

// flatten turns an ozzo error map into issues keyed by document path.
func flatten(prefix string, err error) []apperr.ValidationIssue {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return []apperr.ValidationIssue{{Path: prefix, Message: err.Error()}}
	}
	out := make([]apperr.ValidationIssue, 0, len(errs))
	for field, fe := range errs {
		path := field
		if prefix != "" {
			path = prefix + "." + field
		}
		out = append(out, apperr.ValidationIssue{Path: path, Message: fe.Error()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
