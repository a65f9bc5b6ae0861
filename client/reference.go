package client

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidReference is returned for text that does not name a beatmap.
var ErrInvalidReference = errors.New("invalid beatmap reference")

// ParseReference extracts a beatmap ID from a bare ID or a beatmap URL.
// Accepted URLs have a /beatmaps/{id} or /b/{id} path, or a beatmapset
// page fragment such as #osu/{id}.
func ParseReference(ref string) (uint32, error) {
	ref = strings.TrimSpace(ref)
	if id, err := parseID(ref); err == nil {
		return id, nil
	}

	u, err := url.Parse(ref)
	if err != nil || !u.IsAbs() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}

	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segments) >= 2 && (segments[0] == "beatmaps" || segments[0] == "b") {
		id, err := parseID(segments[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
		}
		return id, nil
	}

	// https://osu.ppy.sh/beatmapsets/{set}#{mode}/{id}
	if parts := strings.Split(u.Fragment, "/"); len(parts) == 2 {
		if id, err := parseID(parts[1]); err == nil {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}
