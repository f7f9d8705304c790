package remover

import (
	"errors"
	"strings"

	refdocker "github.com/distribution/reference"
)

// BaseName strips any tag or digest from rawRef and returns the familiar
// repository name, e.g. "repo:oldtag" -> "repo",
// "localhost:5000/foo:bar" -> "localhost:5000/foo".
func BaseName(rawRef string) (refdocker.Named, error) {
	if strings.TrimSpace(rawRef) == "" {
		return nil, &InputError{Value: rawRef, Err: errors.New("image name must not be empty")}
	}
	named, err := refdocker.ParseNormalizedNamed(rawRef)
	if err != nil {
		return nil, &InputError{Value: rawRef, Err: err}
	}
	return refdocker.TrimNamed(named), nil
}

// EffectiveTags returns the tags to iterate over.
// No tags means a single attempt on the bare name.
func EffectiveTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{""}
	}
	return tags
}

// QualifiedName combines base and tag. An empty tag yields the bare name.
func QualifiedName(base refdocker.Named, tag string) (string, error) {
	if tag == "" {
		return refdocker.FamiliarString(base), nil
	}
	tagged, err := refdocker.WithTag(base, tag)
	if err != nil {
		return "", &InputError{Value: tag, Err: err}
	}
	return refdocker.FamiliarString(tagged), nil
}
