// Package component loads firmware components out of an IPSW archive
// and personalizes them with the current ticket: resolve a component's
// archive path (preferring a ticket-supplied path over the build
// identity's manifest path), extract it, and personalize it.
//
// Personalized bytes are cached per (component name, ticket digest) with
// a bounded LRU so repeated PersonalizedBootObjectV3/SourceBootObjectV4
// requests for the same component within one session don't redo the
// personalize_component round trip.
package component

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/ipsw"
	"github.com/restored-go/restored/restore/plist"
)

// Personalizer wraps a component payload and a ticket into the
// device-expected container (IMG4 or legacy). It is an external
// collaborator.
type Personalizer interface {
	Personalize(name string, payload []byte, ticket plist.Dict) ([]byte, error)
}

// Loader extracts and personalizes build-identity components.
type Loader struct {
	archive      ipsw.Archive
	personalizer Personalizer
	cache        *lru.Cache[string, []byte]
}

// NewLoader returns a Loader backed by archive and personalizer, caching
// up to cacheSize personalized components.
func NewLoader(archive ipsw.Archive, personalizer Personalizer, cacheSize int) (*Loader, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	c, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("component: create cache: %w", err)
	}
	return &Loader{archive: archive, personalizer: personalizer, cache: c}, nil
}

// ResolvePath finds the archive path for a named component: the
// ticket's own "Path" entry for that component takes precedence over the
// build identity's manifest path.
func ResolvePath(name string, ticket plist.Dict, identity buildid.BuildIdentity) (string, error) {
	if comp, ok := ticket.Dict(name); ok {
		if p, ok := comp.String("Path"); ok && p != "" {
			return p, nil
		}
	}
	if p, ok := identity.Path(name); ok {
		return p, nil
	}
	return "", fmt.Errorf("component: %s: no path in ticket or build identity manifest", name)
}

// LoadRaw extracts a component's bytes from the archive without
// personalizing them (used for SourceBootObjectV4).
func (l *Loader) LoadRaw(name string, ticket plist.Dict, identity buildid.BuildIdentity) ([]byte, error) {
	path, err := ResolvePath(name, ticket, identity)
	if err != nil {
		return nil, err
	}
	data, err := l.archive.ExtractToMemory(path)
	if err != nil {
		return nil, fmt.Errorf("component: %s: extract %s: %w", name, path, err)
	}
	return data, nil
}

// LoadPersonalized extracts and personalizes a component (used for
// PersonalizedBootObjectV3 and the single-shot component replies).
func (l *Loader) LoadPersonalized(name string, ticket plist.Dict, identity buildid.BuildIdentity) ([]byte, error) {
	key := cacheKey(name, ticket)
	if cached, ok := l.cache.Get(key); ok {
		log.Debugf("component: %s: personalized bytes served from cache", name)
		return cached, nil
	}

	raw, err := l.LoadRaw(name, ticket, identity)
	if err != nil {
		return nil, err
	}
	personalized, err := l.personalizer.Personalize(name, raw, ticket)
	if err != nil {
		return nil, fmt.Errorf("component: %s: personalize: %w", name, err)
	}
	l.cache.Add(key, personalized)
	return personalized, nil
}

// Personalize runs payload through the configured Personalizer directly,
// uncached. It backs one-off personalizations that aren't manifest
// components, such as the RecoveryOSLocalPolicy handler's embedded
// lpol_file template.
func (l *Loader) Personalize(name string, payload []byte, ticket plist.Dict) ([]byte, error) {
	return l.personalizer.Personalize(name, payload, ticket)
}

// cacheKey derives a stable cache key from the component name and the
// ticket's blob for that component (per-component -Blob entries are the
// only part of the ticket that can change what personalization yields).
func cacheKey(name string, ticket plist.Dict) string {
	h := sha256.New()
	h.Write([]byte(name))
	if blob, ok := ticket.Data(name + "-Blob"); ok {
		h.Write(blob)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
