// Package status_text renders engine status events as user-facing text.
// Catalogs are gettext .po files embedded at build time, keyed by StatusKind.String().
package status_text

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"qgrid/reinforcement"

	"github.com/leonelquinteros/gotext"
)

const (
	ENGLISH = "en"
	RUSSIAN = "ru"

	DEFAULT_LANGUAGE = ENGLISH

	// GOAL_UNREACHABLE is not a StatusKind; it is appended to status text when penalties wall off the goal.
	GOAL_UNREACHABLE = "goal_unreachable"
)

var ErrUnknownLanguage = errors.New("unknown language")

//go:embed locales/*.po
var locales embed.FS

var (
	loadOnce sync.Once
	catalogs map[string]*gotext.Po
	loadErr  error
)

func loadCatalogs() (map[string]*gotext.Po, error) {
	loadOnce.Do(func() {
		catalogs = map[string]*gotext.Po{}
		for _, lang := range []string{ENGLISH, RUSSIAN} {
			buf, err := locales.ReadFile(fmt.Sprintf("locales/%s.po", lang))
			if err != nil {
				loadErr = fmt.Errorf("reading %s catalog: %w", lang, err)
				return
			}
			po := gotext.NewPo()
			po.Parse(buf)
			catalogs[lang] = po
		}
	})
	return catalogs, loadErr
}

// Languages lists the available catalogs.
func Languages() []string {
	cats, _ := loadCatalogs()
	langs := make([]string, 0, len(cats))
	for lang := range cats {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Translator holds the active language. It is safe for concurrent use.
type Translator struct {
	mu   sync.RWMutex
	lang string
	cats map[string]*gotext.Po
}

func NewTranslator(lang string) (*Translator, error) {
	cats, err := loadCatalogs()
	if err != nil {
		return nil, err
	}
	tr := &Translator{cats: cats}
	if err := tr.SetLanguage(lang); err != nil {
		return nil, err
	}
	return tr, nil
}

func (tr *Translator) Language() string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.lang
}

// SetLanguage switches the active catalog. An empty @lang selects the default.
func (tr *Translator) SetLanguage(lang string) error {
	if lang == "" {
		lang = DEFAULT_LANGUAGE
	}
	if _, ok := tr.cats[lang]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	tr.mu.Lock()
	tr.lang = lang
	tr.mu.Unlock()
	return nil
}

// Toggle flips between English and Russian and returns the new language.
func (tr *Translator) Toggle() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.lang == ENGLISH {
		tr.lang = RUSSIAN
	} else {
		tr.lang = ENGLISH
	}
	return tr.lang
}

// Text renders @ev in the active language. A LanguageSwitched event is rendered
// in the language it names, not the one that was active.
func (tr *Translator) Text(ev reinforcement.StatusEvent) string {
	lang := tr.Language()
	if ev.Kind == reinforcement.LanguageSwitched && ev.Language != "" {
		if _, ok := tr.cats[ev.Language]; ok {
			lang = ev.Language
		}
	}
	po := tr.cats[lang]

	if ev.Kind == reinforcement.AgentMoved && ev.Position != nil {
		return po.Get(ev.Kind.String(), ev.Position.Row, ev.Position.Col)
	}
	return po.Get(ev.Kind.String())
}

// Message looks up a catalog entry that is not a status, such as GOAL_UNREACHABLE.
func (tr *Translator) Message(key string, vars ...interface{}) string {
	return tr.cats[tr.Language()].Get(key, vars...)
}
