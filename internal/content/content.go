// Package content holds the user-facing texts, menus, product catalog and
// media links of the bot. A built-in catalog is embedded; deployments can
// override any part of it with a YAML file.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/ferraceros/ferrabot/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// Message keys every catalog must define.
const (
	MsgWelcome                 = "welcome"
	MsgFarewell                = "farewell"
	MsgClarification           = "clarification"
	MsgUnknownButton           = "unknown_button"
	MsgLocation                = "location"
	MsgAskQuestion             = "ask_question"
	MsgSupportStart            = "support_start"
	MsgAssistantApology        = "assistant_apology"
	MsgFeedbackPrompt          = "feedback_prompt"
	MsgQuotationProduct        = "quotation_product"
	MsgQuotationInvalidProduct = "quotation_invalid_product"
	MsgQuotationQuantity       = "quotation_quantity"
	MsgQuotationUnit           = "quotation_unit"
	MsgQuotationCity           = "quotation_city"
	MsgQuotationSummary        = "quotation_summary"
)

// Menu names every catalog must define.
const (
	MenuMain             = "main"
	MenuCatalogFollowup  = "catalog_followup"
	MenuQuestionFollowup = "question_followup"
	MenuLocationFollowup = "location_followup"
	MenuPostQuotation    = "post_quotation"
)

var requiredMessages = []string{
	MsgWelcome, MsgFarewell, MsgClarification, MsgUnknownButton, MsgLocation,
	MsgAskQuestion, MsgSupportStart, MsgAssistantApology, MsgFeedbackPrompt,
	MsgQuotationProduct, MsgQuotationInvalidProduct, MsgQuotationQuantity,
	MsgQuotationUnit, MsgQuotationCity, MsgQuotationSummary,
}

var requiredMenus = []string{
	MenuMain, MenuCatalogFollowup, MenuQuestionFollowup, MenuLocationFollowup, MenuPostQuotation,
}

// Menu is a body text with reply buttons.
type Menu struct {
	Body    string          `yaml:"body"`
	Buttons []domain.Button `yaml:"buttons"`
}

// Media is a canned media message.
type Media struct {
	Kind    domain.MediaKind `yaml:"kind"`
	URL     string           `yaml:"url"`
	Caption string           `yaml:"caption"`
}

// FeedbackWords are the tokens used to classify satisfaction replies.
type FeedbackWords struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Catalog is the full content set.
type Catalog struct {
	Messages   map[string]string   `yaml:"messages"`
	Menus      map[string]Menu     `yaml:"menus"`
	Aliases    map[string][]string `yaml:"aliases"`
	Products   []string            `yaml:"products"`
	Greetings  []string            `yaml:"greetings"`
	CatalogDoc Media               `yaml:"catalog"`
	MediaKeys  map[string]Media    `yaml:"media"`
	Feedback   FeedbackWords       `yaml:"feedback"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		return nil, fmt.Errorf("failed to parse built-in content: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("built-in content: %w", err)
	}
	return &c, nil
}

// Load returns the embedded catalog overlaid with the YAML file at path.
// An empty path returns the embedded catalog unchanged.
func Load(path string) (*Catalog, error) {
	c, err := Default()
	if err != nil || path == "" {
		return c, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse content file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("content file %s: %w", path, err)
	}
	return c, nil
}

// Validate checks that every message and menu the engine uses is present
// and that menus respect the Cloud API button limits.
func (c *Catalog) Validate() error {
	var problems []string

	for _, key := range requiredMessages {
		if strings.TrimSpace(c.Messages[key]) == "" {
			problems = append(problems, "messages."+key+" is empty")
		}
	}
	for _, name := range requiredMenus {
		menu, ok := c.Menus[name]
		if !ok {
			problems = append(problems, "menus."+name+" is missing")
			continue
		}
		if n := len(menu.Buttons); n == 0 || n > domain.MaxButtons {
			problems = append(problems, fmt.Sprintf("menus.%s has %d buttons, want 1-%d", name, n, domain.MaxButtons))
		}
		for i, b := range menu.Buttons {
			if b.ID == "" || b.Title == "" {
				problems = append(problems, fmt.Sprintf("menus.%s.buttons[%d] needs id and title", name, i))
			}
			// Cloud API limit for reply button titles.
			if len([]rune(b.Title)) > 20 {
				problems = append(problems, fmt.Sprintf("menus.%s.buttons[%d] title exceeds 20 characters", name, i))
			}
		}
	}
	if len(c.Products) == 0 {
		problems = append(problems, "products is empty")
	}
	if !c.CatalogDoc.Kind.Valid() || c.CatalogDoc.URL == "" {
		problems = append(problems, "catalog needs a valid kind and url")
	}
	for key, m := range c.MediaKeys {
		if !m.Kind.Valid() || m.URL == "" {
			problems = append(problems, "media."+key+" needs a valid kind and url")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid content: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Text renders message key, substituting {placeholder} pairs given as
// alternating name, value arguments.
func (c *Catalog) Text(key string, pairs ...string) string {
	msg := c.Messages[key]
	if len(pairs) == 0 {
		return msg
	}
	oldnew := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		oldnew = append(oldnew, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(oldnew...).Replace(msg)
}

// Menu returns the named menu.
func (c *Catalog) Menu(name string) Menu {
	return c.Menus[name]
}

// ActionForLabel maps a button label back to its action id, using the
// configured aliases first and then the titles of every menu button.
func (c *Catalog) ActionForLabel(label string) (string, bool) {
	norm := domain.Normalize(label)
	if norm == "" {
		return "", false
	}

	ids := make([]string, 0, len(c.Aliases))
	for id := range c.Aliases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, alias := range c.Aliases[id] {
			if domain.Normalize(alias) == norm {
				return id, true
			}
		}
	}

	for _, name := range requiredMenus {
		for _, b := range c.Menus[name].Buttons {
			if domain.Normalize(b.Title) == norm {
				return b.ID, true
			}
		}
	}
	return "", false
}

// ProductOptions renders the numbered product list.
func (c *Catalog) ProductOptions() string {
	var b strings.Builder
	for i, p := range c.Products {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, p)
	}
	return b.String()
}

// ProductPrompt is the first wizard question with the option list.
func (c *Catalog) ProductPrompt() string {
	return c.Text(MsgQuotationProduct, "options", c.ProductOptions())
}

// InvalidProductPrompt re-asks for the product after an out-of-range number.
func (c *Catalog) InvalidProductPrompt() string {
	return c.Text(MsgQuotationInvalidProduct,
		"max", strconv.Itoa(len(c.Products)),
		"options", c.ProductOptions(),
	)
}

// SelectProduct interprets a product answer. A number (plain, signed or
// keycap emoji) selects from the catalog; ok is false when it does not name
// an option. Any other text is taken as typed.
func (c *Catalog) SelectProduct(input string) (product string, ok bool) {
	input = strings.TrimSpace(input)
	if digits, isNumber := selectionDigits(input); isNumber {
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 || n > len(c.Products) {
			return "", false
		}
		return c.Products[n-1], true
	}
	return input, input != ""
}

// selectionDigits strips keycap runes and a trailing "." from s and reports
// whether the rest is an optional sign followed only by ASCII digits.
func selectionDigits(s string) (string, bool) {
	s = strings.TrimSuffix(s, ".")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\uFE0F', '\u20E3':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSuffix(s, ".")

	digits := strings.TrimLeft(s, "+-")
	if digits == "" || len(s)-len(digits) > 1 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

// IsGreeting reports whether normalized text is a greeting word.
func (c *Catalog) IsGreeting(normalized string) bool {
	for _, g := range c.Greetings {
		if normalized == domain.Normalize(g) {
			return true
		}
	}
	return false
}

// MediaFor returns the canned media for a normalized keyword.
func (c *Catalog) MediaFor(normalized string) (Media, bool) {
	m, ok := c.MediaKeys[normalized]
	return m, ok
}

// Sentiment values returned by ClassifyFeedback.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// ClassifyFeedback counts positive and negative tokens in text.
func (c *Catalog) ClassifyFeedback(text string) string {
	positive := toSet(c.Feedback.Positive)
	negative := toSet(c.Feedback.Negative)

	var pos, neg int
	for _, tok := range strings.Fields(domain.Normalize(text)) {
		tok = strings.TrimFunc(tok, unicode.IsPunct)
		if _, ok := positive[tok]; ok {
			pos++
		}
		if _, ok := negative[tok]; ok {
			neg++
		}
	}

	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[domain.Normalize(w)] = struct{}{}
	}
	return set
}
