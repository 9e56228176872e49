package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/clawcart/clawcart/internal/models"
)

// PageState is what the driver can observe about the current page. Content
// is a trimmed text rendering, enough for the reasoner to pick a next step;
// it is never persisted.
type PageState struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Driver executes browser actions against a merchant site. Implementations
// must be safe to discard after Close; one driver serves one checkout run.
type Driver interface {
	Navigate(ctx context.Context, url string) (PageState, error)
	Perform(ctx context.Context, action models.StepAction) (PageState, error)
	State(ctx context.Context) (PageState, error)
	Close(ctx context.Context) error
}

// SimDriver is a deterministic in-memory merchant used in development and
// tests. It walks a scripted page graph: a selector either advances the
// page, fails, or is simply filled in place.
type SimDriver struct {
	mu sync.Mutex

	pages   map[string]SimPage
	current string
	filled  map[string]string

	// FailSelectors lists selectors that error on first touch; each entry
	// fails once and then succeeds, modelling a transient page change.
	FailSelectors map[string]bool
	// DeadSelectors always fail, modelling a removed element.
	DeadSelectors map[string]bool
}

// SimPage is one node of the scripted site.
type SimPage struct {
	Title   string
	Content string
	// Advance maps a clicked selector to the page it lands on.
	Advance map[string]string
	// Fields lists fillable selectors present on the page.
	Fields []string
}

func NewSimDriver(entry string, pages map[string]SimPage) *SimDriver {
	return &SimDriver{
		pages:         pages,
		current:       entry,
		filled:        make(map[string]string),
		FailSelectors: make(map[string]bool),
		DeadSelectors: make(map[string]bool),
	}
}

func (d *SimDriver) Navigate(ctx context.Context, url string) (PageState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pages[url]; !ok {
		return PageState{}, fmt.Errorf("no such page %q", url)
	}
	d.current = url
	return d.stateLocked(), nil
}

func (d *SimDriver) Perform(ctx context.Context, action models.StepAction) (PageState, error) {
	if err := ctx.Err(); err != nil {
		return PageState{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if action.Type == models.ActionNavigate {
		if _, ok := d.pages[action.URL]; !ok {
			return PageState{}, fmt.Errorf("no such page %q", action.URL)
		}
		d.current = action.URL
		return d.stateLocked(), nil
	}

	sel := action.Selector
	if d.DeadSelectors[sel] {
		return PageState{}, fmt.Errorf("element %q not found", sel)
	}
	if d.FailSelectors[sel] {
		delete(d.FailSelectors, sel)
		return PageState{}, fmt.Errorf("element %q not interactable", sel)
	}

	page := d.pages[d.current]
	switch action.Type {
	case models.ActionClick:
		if next, ok := page.Advance[sel]; ok {
			d.current = next
			return d.stateLocked(), nil
		}
		return PageState{}, fmt.Errorf("element %q not found", sel)
	case models.ActionFill, models.ActionSelect:
		for _, f := range page.Fields {
			if f == sel {
				d.filled[sel] = action.Value
				return d.stateLocked(), nil
			}
		}
		return PageState{}, fmt.Errorf("field %q not found", sel)
	case models.ActionWait, models.ActionScroll, models.ActionPressKey:
		return d.stateLocked(), nil
	}
	return PageState{}, fmt.Errorf("unsupported action %q", action.Type)
}

func (d *SimDriver) State(ctx context.Context) (PageState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked(), nil
}

func (d *SimDriver) Close(ctx context.Context) error { return nil }

// Filled returns what was typed into a field, for assertions.
func (d *SimDriver) Filled(selector string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filled[selector]
}

func (d *SimDriver) stateLocked() PageState {
	page := d.pages[d.current]
	content := page.Content
	if content == "" {
		var fields []string
		for sel := range page.Advance {
			fields = append(fields, "button:"+sel)
		}
		content = strings.Join(fields, " ")
	}
	return PageState{URL: d.current, Title: page.Title, Content: content}
}
