package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"docarchive/internal/documents"
	"docarchive/internal/logging"
	"docarchive/internal/services/llm"
)

const (
	temperature         = 0.3
	defaultMaxInput     = 4000
	defaultCurrency     = "CHF"
	defaultDisplayName  = "Document sans titre"
	defaultSummary      = "Analyse automatique non disponible"
	defaultConfidence   = 0.5
	maxDisplayNameRunes = 80
	maxSummaryRunes     = 500
	maxKeywords         = 10
)

// Factors are the model's yes/no signals feeding the importance score.
type Factors struct {
	HasDeadline    bool `json:"has_deadline"`
	IsUrgent       bool `json:"is_urgent"`
	HasHighAmount  bool `json:"has_high_amount"`
	RequiresAction bool `json:"requires_action"`
}

// Result is the validated metadata for one document.
type Result struct {
	Kind            documents.Kind    `json:"document_type"`
	Category        string            `json:"category"`
	DisplayName     string            `json:"display_name"`
	DocumentDate    *time.Time        `json:"document_date,omitempty"`
	Deadline        *time.Time        `json:"deadline,omitempty"`
	Amount          *documents.Amount `json:"amount,omitempty"`
	Currency        string            `json:"currency"`
	Keywords        []string          `json:"keywords"`
	Factors         Factors           `json:"importance_factors"`
	Confidence      float64           `json:"confidence"`
	Summary         string            `json:"summary"`
	ImportanceScore float64           `json:"importance_score"`
	// Fallback is set when the model was not consulted or its answer was
	// unusable.
	Fallback bool `json:"-"`
}

// DefaultResult is returned whenever analysis cannot produce metadata.
func DefaultResult() Result {
	return Result{
		Kind:            documents.KindOther,
		Category:        documents.GeneralCategory,
		DisplayName:     defaultDisplayName,
		Currency:        defaultCurrency,
		Keywords:        []string{},
		Summary:         defaultSummary,
		ImportanceScore: 50,
		Fallback:        true,
	}
}

// ExtractedData renders the JSON blob persisted alongside the document.
func (r Result) ExtractedData(ocrMethod string, ocrConfidence float64) string {
	payload := struct {
		Factors       Factors `json:"importance_factors"`
		Summary       string  `json:"summary"`
		OCRMethod     string  `json:"ocr_method"`
		OCRConfidence float64 `json:"ocr_confidence"`
	}{r.Factors, r.Summary, ocrMethod, ocrConfidence}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// Completer issues JSON chat completions.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// Option customizes the Service.
type Option func(*Service)

// WithClock overrides the time source used for deadline proximity.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service extracts structured metadata from document text.
type Service struct {
	client   Completer
	maxInput int
	now      func() time.Time
	logger   *slog.Logger
}

// New builds an analysis service. A nil or unconfigured client makes every
// call return DefaultResult.
func New(client Completer, maxInputChars int, logger *slog.Logger, opts ...Option) *Service {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInput
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		client:   client,
		maxInput: maxInputChars,
		now:      time.Now,
		logger:   logging.NewComponentLogger(logger, "analysis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze never fails: any problem yields DefaultResult. The returned
// confidence never exceeds ocrConfidence.
func (s *Service) Analyze(ctx context.Context, text string, ocrConfidence float64) Result {
	logger := logging.WithContext(ctx, s.logger)
	text = strings.TrimSpace(text)
	if text == "" {
		logger.Warn("no text to analyse; using default metadata")
		return DefaultResult()
	}
	if s.client == nil || !s.client.Configured() {
		logger.Info("llm not configured; using default metadata",
			logging.Args(logging.DecisionAttrs("analysis", "skipped", "llm api key not configured")...)...)
		return DefaultResult()
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        userPromptPrefix + truncateRunes(text, s.maxInput),
		Temperature: temperature,
	})
	if err != nil {
		logging.WarnWithContext(logger, "llm analysis failed; using default metadata", "analysis_llm_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check llm.api_key, llm.model and network access"),
		)
		return DefaultResult()
	}
	result, err := s.parse(completion.Content, ocrConfidence)
	if err != nil {
		logging.WarnWithContext(logger, "llm analysis unusable; using default metadata", "analysis_invalid_payload",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the model did not follow the response format"),
		)
		return DefaultResult()
	}
	logger.Info("document analysed",
		logging.String("document_type", string(result.Kind)),
		logging.String("category", result.Category),
		logging.Float64("confidence", result.Confidence),
		logging.Float64("importance_score", result.ImportanceScore),
		logging.Int("prompt_tokens", completion.Usage.PromptTokens),
		logging.Int("completion_tokens", completion.Usage.CompletionTokens),
	)
	return result
}

var errNoObject = errors.New("no json object in response")

type rawResponse struct {
	DocumentType *string  `json:"document_type"`
	Category     *string  `json:"category"`
	DisplayName  *string  `json:"display_name"`
	DocumentDate *string  `json:"document_date"`
	Deadline     *string  `json:"deadline"`
	Amount       any      `json:"amount"`
	Currency     *string  `json:"currency"`
	Keywords     []string `json:"keywords"`
	Factors      *Factors `json:"importance_factors"`
	Confidence   *float64 `json:"confidence"`
	Summary      *string  `json:"summary"`
}

func (s *Service) parse(content string, ocrConfidence float64) (Result, error) {
	payload := llm.ExtractJSONObject(content)
	if !strings.HasPrefix(payload, "{") {
		return Result{}, errNoObject
	}
	if err := validateResponse([]byte(payload)); err != nil {
		return Result{}, err
	}
	var raw rawResponse
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Result{}, err
	}
	return s.normalize(raw, ocrConfidence), nil
}

func (s *Service) normalize(raw rawResponse, ocrConfidence float64) Result {
	r := Result{
		Kind:         documents.ParseKind(deref(raw.DocumentType)),
		Category:     normalizeCategory(deref(raw.Category)),
		DisplayName:  truncateRunes(strings.TrimSpace(deref(raw.DisplayName)), maxDisplayNameRunes),
		DocumentDate: ParseDate(deref(raw.DocumentDate)),
		Deadline:     ParseDate(deref(raw.Deadline)),
		Amount:       ParseAmount(raw.Amount),
		Currency:     strings.ToUpper(strings.TrimSpace(deref(raw.Currency))),
		Keywords:     normalizeKeywords(raw.Keywords),
		Summary:      truncateRunes(strings.TrimSpace(deref(raw.Summary)), maxSummaryRunes),
	}
	if r.Currency == "" {
		r.Currency = defaultCurrency
	}
	if raw.Factors != nil {
		r.Factors = *raw.Factors
	}
	confidence := defaultConfidence
	if raw.Confidence != nil {
		confidence = clamp(*raw.Confidence, 0, 1)
	}
	r.Confidence = math.Min(confidence, clamp(ocrConfidence, 0, 1))
	r.ImportanceScore = ImportanceScore(r, s.now())
	return r
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

func normalizeCategory(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" || strings.EqualFold(value, documents.GeneralCategory) {
		return documents.GeneralCategory
	}
	return titleCaser.String(value)
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, min(len(in), maxKeywords))
	for _, kw := range in {
		if len(out) == maxKeywords {
			break
		}
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

var datePatterns = []struct {
	re        *regexp.Regexp
	yearFirst bool
}{
	{regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`), true},
	{regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`), false},
	{regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`), false},
}

// ParseDate finds the first valid YYYY-MM-DD, DD.MM.YYYY or DD/MM/YYYY date
// in value. Impossible calendar dates are skipped.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return nil
	}
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		year, month, day := m[1], m[2], m[3]
		if !p.yearFirst {
			year, day = m[3], m[1]
		}
		y, _ := strconv.Atoi(year)
		mo, _ := strconv.Atoi(month)
		d, _ := strconv.Atoi(day)
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
			continue
		}
		return &t
	}
	return nil
}

// ParseAmount accepts JSON numbers and strings such as "1'234.50",
// "1 234,50" or "89.90".
func ParseAmount(value any) *documents.Amount {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		cleaned := strings.Map(func(r rune) rune {
			switch {
			case r == '\'' || r == '’' || unicode.IsSpace(r):
				return -1
			case r == ',':
				return '.'
			}
			return r
		}, v)
		if cleaned == "" || strings.EqualFold(cleaned, "null") {
			return nil
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	a := documents.AmountFromFloat(f)
	return &a
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
