// Package classifier labels a log file with its family using signature scores
// and extension-specific rules.
package classifier

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/decode"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/signature"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var (
	// ErrNotFound is returned for files that do not exist
	ErrNotFound = errors.New("file not found")
	// ErrRead is returned for files that exist but cannot be read
	ErrRead = errors.New("file could not be read")
)

// Config holds classifier thresholds
type Config struct {
	MinLines         int      `yaml:"min_lines"`
	MinScore         int      `yaml:"min_score"`
	ExtensionScore   int      `yaml:"extension_score"`
	StrictScore      int      `yaml:"strict_score"`
	HeaderScore      int      `yaml:"header_score"`
	NonLogExtensions []string `yaml:"non_log_extensions"`
}

// DefaultConfig returns the thresholds used for terminal log bundles
func DefaultConfig() Config {
	return Config{
		MinLines:       5,
		MinScore:       5,
		ExtensionScore: 5,
		StrictScore:    10,
		HeaderScore:    5,
		NonLogExtensions: []string{
			".py", ".js", ".html", ".css", ".json", ".xml", ".txt",
			".xlsx", ".xls", ".csv", ".pdf", ".doc", ".docx",
		},
	}
}

// Result is the classification outcome for one file
type Result struct {
	Path     string            `json:"path"`
	Label    types.FamilyLabel `json:"label"`
	Encoding string            `json:"encoding,omitempty"`
	Scores   signature.Scores  `json:"scores"`
	Reason   string            `json:"reason,omitempty"`
	Err      error             `json:"-"`
}

// evidence is what the extension rules decide on
type evidence struct {
	scores  signature.Scores
	max     int
	headers int
}

// rule assigns label when test holds. Rules are evaluated in order.
type rule struct {
	label types.FamilyLabel
	test  func(e evidence) bool
}

// Classifier labels files. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	cfg     Config
	decoder *decode.Decoder
	nonLog  map[string]bool
	rules   map[string][]rule
	general []rule
}

// New creates a classifier. Zero thresholds fall back to defaults.
func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.MinLines <= 0 {
		cfg.MinLines = def.MinLines
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.ExtensionScore <= 0 {
		cfg.ExtensionScore = def.ExtensionScore
	}
	if cfg.StrictScore <= 0 {
		cfg.StrictScore = def.StrictScore
	}
	if cfg.HeaderScore <= 0 {
		cfg.HeaderScore = def.HeaderScore
	}
	if cfg.NonLogExtensions == nil {
		cfg.NonLogExtensions = def.NonLogExtensions
	}

	c := &Classifier{
		cfg:     cfg,
		decoder: decode.Default(),
		nonLog:  make(map[string]bool, len(cfg.NonLogExtensions)),
	}
	for _, ext := range cfg.NonLogExtensions {
		c.nonLog[strings.ToLower(ext)] = true
	}
	c.buildRules()
	return c
}

func (c *Classifier) buildRules() {
	extScore := c.cfg.ExtensionScore
	strict := c.cfg.StrictScore
	headers := c.cfg.HeaderScore

	isMax := func(f types.FamilyLabel) func(evidence) bool {
		return func(e evidence) bool { return e.scores.Of(f) == e.max }
	}
	atLeast := func(f types.FamilyLabel, n int) func(evidence) bool {
		return func(e evidence) bool { return e.scores.Of(f) >= n }
	}
	strictMax := func(f types.FamilyLabel) func(evidence) bool {
		return func(e evidence) bool { return e.scores.Of(f) == e.max && e.max >= strict }
	}

	c.rules = map[string][]rule{
		".prn": {
			{types.FamilyTRCError, func(e evidence) bool { return e.headers >= headers }},
			{types.FamilyTRCError, isMax(types.FamilyTRCError)},
			{types.FamilyTRCTrace, isMax(types.FamilyTRCTrace)},
			{types.FamilyTRCError, atLeast(types.FamilyTRCError, extScore)},
			{types.FamilyTRCTrace, atLeast(types.FamilyTRCTrace, extScore)},
		},
		".jrn": {
			{types.FamilyUIJournal, isMax(types.FamilyUIJournal)},
			{types.FamilyCustomerJournal, isMax(types.FamilyCustomerJournal)},
			{types.FamilyUIJournal, atLeast(types.FamilyUIJournal, extScore)},
			{types.FamilyCustomerJournal, atLeast(types.FamilyCustomerJournal, extScore)},
		},
	}
	c.general = []rule{
		{types.FamilyTRCError, strictMax(types.FamilyTRCError)},
		{types.FamilyUIJournal, strictMax(types.FamilyUIJournal)},
		{types.FamilyCustomerJournal, strictMax(types.FamilyCustomerJournal)},
		{types.FamilyTRCTrace, strictMax(types.FamilyTRCTrace)},
	}
}

// Classify labels in-memory content. name supplies the extension.
func (c *Classifier) Classify(name string, data []byte) Result {
	f := types.NewLogFileFromBytes(name, data)
	return c.ClassifyFile(f)
}

// ClassifyPath labels the file at path
func (c *Classifier) ClassifyPath(path string) Result {
	return c.ClassifyFile(types.NewLogFile(path))
}

// ClassifyFile labels f, reading its content only when the extension does not
// rule it out
func (c *Classifier) ClassifyFile(f *types.LogFile) Result {
	res := Result{Path: f.Path, Label: types.FamilyUnclassified}

	if err := f.Stat(); err != nil {
		return c.fail(res, err)
	}

	ext := f.Ext()
	if c.nonLog[ext] {
		res.Reason = fmt.Sprintf("extension %s is not a log format", ext)
		return res
	}

	data, err := f.Bytes()
	if err != nil {
		return c.fail(res, err)
	}

	decoded, err := c.decoder.Decode(data)
	if err != nil {
		return c.fail(res, err)
	}
	res.Encoding = decoded.Encoding

	lines := decode.SplitLines(decoded.Text)
	if n := countNonEmpty(lines); n < c.cfg.MinLines {
		res.Reason = fmt.Sprintf("insufficient data: %d non-empty lines", n)
		return res
	}

	res.Scores = signature.ScoreAll(lines)
	e := evidence{scores: res.Scores, max: res.Scores.Max()}
	if e.max < c.cfg.MinScore {
		res.Reason = "no signature matched with sufficient confidence"
		return res
	}

	rules, ok := c.rules[ext]
	if !ok {
		rules = c.general
	}
	if ext == ".prn" {
		e.headers = signature.CountTRCErrorHeaders(lines)
	}

	for _, r := range rules {
		if r.test(e) {
			res.Label = r.label
			return res
		}
	}

	res.Reason = fmt.Sprintf("no %s rule matched with sufficient confidence", extOrDefault(ext))
	return res
}

func (c *Classifier) fail(res Result, err error) Result {
	if errors.Is(err, fs.ErrNotExist) {
		res.Err = fmt.Errorf("%w: %s", ErrNotFound, res.Path)
	} else if errors.Is(err, decode.ErrDecode) {
		res.Err = fmt.Errorf("failed to decode %s: %w", res.Path, err)
	} else {
		res.Err = fmt.Errorf("%w: %s: %v", ErrRead, res.Path, err)
	}
	res.Label = ""
	res.Reason = res.Err.Error()
	return res
}

func countNonEmpty(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func extOrDefault(ext string) string {
	if ext == "" {
		return "general"
	}
	return ext
}
