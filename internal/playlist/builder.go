package playlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/signage/internal/fetch"
	"github.com/abelbrown/signage/internal/logging"
	"github.com/abelbrown/signage/internal/screen"
	"github.com/abelbrown/signage/internal/validate"
)

// BatchToken in a resource expands one entry into BatchSize items.
const (
	BatchToken = "[01:10]"
	BatchSize  = 10
)

// Getter retrieves a URL body. *fetch.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Report summarizes one build for logs and events.
type Report struct {
	Profile    string
	URL        string
	Raw        int // entries in the document
	Accepted   int // entries that produced items
	Disabled   int
	Invalid    int
	Expanded   int // entries expanded via BatchToken
	Items      int
	Errors     []error // per-entry validation errors
	Diagnostic string  // message on the "No list" item, if one was added
	Err        error   // configuration, fetch or empty-result error
	Took       time.Duration
}

// Fallback reports whether the playlist is the synthetic "No list" item.
func (r Report) Fallback() bool {
	return r.Diagnostic != ""
}

// Builder fetches and assembles playlists.
type Builder struct {
	getter     Getter
	sourceBase string
	timeout    time.Duration
	now        func() time.Time
}

// NewBuilder creates a Builder reading {sourceBase}{profile}.json. A zero
// timeout means fetch.DefaultTimeout.
func NewBuilder(g Getter, sourceBase string, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}
	return &Builder{
		getter:     g,
		sourceBase: sourceBase,
		timeout:    timeout,
		now:        time.Now,
	}
}

// URL returns the document location for profile.
func (b *Builder) URL(profile string) string {
	return b.sourceBase + profile + ".json"
}

// Build fetches the profile's document and assembles a playlist. It never
// fails: every error path ends in a playlist holding one "No list" item whose
// message explains what went wrong.
func (b *Builder) Build(ctx context.Context, profile string) (*Playlist, Report) {
	start := b.now()
	pl := newPlaylist(profile, start)
	rep := Report{Profile: profile}

	var message string
	switch {
	case profile == "":
		logging.Warn("playlist: no profile")
		message = screen.MsgNoProfile
		rep.Err = fmt.Errorf("%w: no profile", screen.ErrConfiguration)
	case b.sourceBase == "":
		logging.Warn("playlist: no source base configured")
		message = screen.MsgNoSourceBase
		rep.Err = fmt.Errorf("%w: no source base", screen.ErrConfiguration)
	default:
		rep.URL = b.URL(profile)
		raws, err := b.fetch(ctx, rep.URL)
		if err != nil {
			message = fetchDiagnostic(profile, err)
			rep.Err = err
		} else {
			b.assemble(pl, raws, &rep)
		}
	}

	if message == "" && len(pl.Items) == 0 {
		message = screen.MsgNoActiveScreens
		// Keep an unclassified fetch error visible next to the empty result.
		rep.Err = errors.Join(rep.Err, screen.ErrEmptyResult)
	}
	if len(pl.Items) == 0 {
		pl.Items = append(pl.Items, screen.NoList(message))
		rep.Diagnostic = message
	}

	rep.Items = len(pl.Items)
	rep.Took = b.now().Sub(start)
	return pl, rep
}

// fetch retrieves and decodes the document. A body that is not valid JSON
// is logged and treated as an empty list.
func (b *Builder) fetch(ctx context.Context, url string) ([]validate.Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	logging.Info("playlist: retrieving", "url", url)
	body, err := b.getter.Get(ctx, url)
	if err != nil {
		logging.Warn("playlist: retrieve failed", "url", url, "err", err)
		return nil, err
	}

	raws, err := validate.Document(body)
	if err != nil {
		logging.Warn("playlist: malformed document", "url", url, "err", err)
		return nil, nil
	}
	return raws, nil
}

// assemble validates raws in order and appends the resulting items.
func (b *Builder) assemble(pl *Playlist, raws []validate.Raw, rep *Report) {
	rep.Raw = len(raws)

	for i, raw := range raws {
		spec, errs := validate.Parse(raw, i)
		if len(errs) > 0 {
			rep.Invalid++
			rep.Errors = append(rep.Errors, errs...)
			for _, err := range errs {
				logging.Warn("playlist: " + err.Error())
			}
			continue
		}
		if !spec.Enabled {
			rep.Disabled++
			logging.Info("playlist: skipping", "name", spec.FriendlyName)
			continue
		}

		rep.Accepted++
		if strings.Contains(spec.Resource, BatchToken) {
			rep.Expanded++
			for _, s := range Expand(spec) {
				pl.Items = append(pl.Items, screen.NewItem(s))
				logging.Info("playlist: adding", "name", s.FriendlyName, "resource", s.Resource)
			}
			continue
		}

		pl.Items = append(pl.Items, screen.NewItem(spec))
		logging.Info("playlist: adding", "name", spec.FriendlyName, "resource", spec.Resource)
	}
}

// Expand clones spec BatchSize times, replacing BatchToken in the resource
// with 01..10 and suffixing the friendly name to match.
func Expand(spec screen.Spec) []screen.Spec {
	out := make([]screen.Spec, 0, BatchSize)
	for i := 1; i <= BatchSize; i++ {
		idx := fmt.Sprintf("%02d", i)
		out = append(out, screen.Spec{
			Enabled:        spec.Enabled,
			FriendlyName:   spec.FriendlyName + "-" + idx,
			Resource:       strings.Replace(spec.Resource, BatchToken, idx, 1),
			DisplaySecs:    spec.DisplaySecs,
			RefreshMinutes: spec.RefreshMinutes,
			TimeBug:        spec.TimeBug,
			Month:          spec.Month,
		})
	}
	return out
}

// fetchDiagnostic turns a document fetch failure into the on-screen message.
func fetchDiagnostic(profile string, err error) string {
	if code, ok := fetch.StatusCode(err); ok {
		return fmt.Sprintf("Profile '%s' not found (%d)", profile, code)
	}
	if errors.Is(err, screen.ErrFetch) {
		return fmt.Sprintf("Profile '%s' unknown error", profile)
	}
	return ""
}
