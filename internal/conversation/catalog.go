package conversation

import (
	"fmt"
	"slices"

	"github.com/samvad-xr/samvad/internal/phonetic"
)

// Language pairs a display name from the language picker with the code sent
// to the backend.
type Language struct {
	Name string
	Code string
}

// DefaultLanguages is the language picker's list.
var DefaultLanguages = []Language{
	{Name: "English", Code: "en"},
	{Name: "Tamil", Code: "ta"},
	{Name: "Kannada", Code: "kn"},
	{Name: "Hindi", Code: "hi"},
	{Name: "Punjabi", Code: "pa"},
}

// DefaultObjects are the items a user can pick up at the stall.
var DefaultObjects = []string{"Tomato", "Apple", "Orange", "Pumpkin", "Watermelon"}

// Catalog resolves language names and object labels coming from the UI.
// Unknown spellings are matched phonetically so "Hindhi" still selects hi.
type Catalog struct {
	languages []Language
	objects   []string
	matcher   *phonetic.Matcher
}

// NewCatalog returns a [Catalog] over the given languages and objects. Nil
// slices select the defaults.
func NewCatalog(languages []Language, objects []string, matcher *phonetic.Matcher) *Catalog {
	if languages == nil {
		languages = DefaultLanguages
	}
	if objects == nil {
		objects = DefaultObjects
	}
	if matcher == nil {
		matcher = phonetic.New()
	}
	return &Catalog{languages: languages, objects: objects, matcher: matcher}
}

// ResolveLanguage accepts a language code or display name and returns the
// code.
func (c *Catalog) ResolveLanguage(nameOrCode string) (string, error) {
	names := make([]string, 0, len(c.languages))
	for _, l := range c.languages {
		if l.Code == nameOrCode {
			return l.Code, nil
		}
		names = append(names, l.Name)
	}
	name, _, ok := c.matcher.Resolve(nameOrCode, names)
	if !ok {
		return "", fmt.Errorf("conversation: unknown language %q", nameOrCode)
	}
	i := slices.IndexFunc(c.languages, func(l Language) bool { return l.Name == name })
	return c.languages[i].Code, nil
}

// LanguageName returns the display name for code, or code itself when it is
// not in the catalog.
func (c *Catalog) LanguageName(code string) string {
	for _, l := range c.languages {
		if l.Code == code {
			return l.Name
		}
	}
	return code
}

// ResolveObject returns the catalog spelling of an object label.
func (c *Catalog) ResolveObject(label string) (string, error) {
	name, _, ok := c.matcher.Resolve(label, c.objects)
	if !ok {
		return "", fmt.Errorf("conversation: unknown object %q", label)
	}
	return name, nil
}

// Languages returns a copy of the catalog's languages.
func (c *Catalog) Languages() []Language {
	return slices.Clone(c.languages)
}

// Objects returns a copy of the catalog's object labels.
func (c *Catalog) Objects() []string {
	return slices.Clone(c.objects)
}

// SelectionText is what the context display shows for a selected object.
func SelectionText(object string) string {
	if object == "" {
		return ""
	}
	return "Selected: " + object
}
