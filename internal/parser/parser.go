// Package parser turns codexbar's JSON output into normalized usage records.
//
// Parsing never fails loudly: malformed documents are logged and reported as "no usable data".
package parser

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

type usageDataDTO struct {
	Usage    *usageDTO `json:"usage"`
	Provider string    `json:"provider"`
	Source   string    `json:"source"`
	Error    string    `json:"error"`
}

type usageDTO struct {
	Primary     *windowDTO `json:"primary"`
	Secondary   *windowDTO `json:"secondary"`
	Tertiary    *windowDTO `json:"tertiary"`
	UpdatedAt   flexTime   `json:"updatedAt"`
	LoginMethod string     `json:"loginMethod"`
}

type windowDTO struct {
	ResetsAt         flexTime `json:"resetsAt"`
	ResetDescription string   `json:"resetDescription"`
	UsedPercent      float64  `json:"usedPercent"`
	WindowMinutes    int      `json:"windowMinutes"`
}

// flexTime accepts the timestamp layouts codexbar has been seen to emit.
// Anything else decodes as absent instead of failing the whole document.
type flexTime struct {
	t *time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	f.t = nil
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// null, numbers and other shapes are treated as absent.
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			f.t = &t
			return nil
		}
	}
	logger.Debug("Ignoring unparseable timestamp", "value", s)
	return nil
}

func (d *usageDataDTO) toUsageData(fallback string) models.UsageData {
	u := models.UsageData{
		Provider:  d.Provider,
		Status:    d.Source,
		Error:     d.Error,
		FetchedAt: now(),
	}
	if u.Provider == "" {
		u.Provider = fallback
	}
	if d.Usage != nil {
		u.Plan = d.Usage.LoginMethod
		u.Session = d.Usage.Primary.toWindow()
		u.Weekly = d.Usage.Secondary.toWindow()
		u.Tertiary = d.Usage.Tertiary.toWindow()
	}
	return u
}

func (w *windowDTO) toWindow() *models.UsageWindow {
	if w == nil {
		return nil
	}
	return &models.UsageWindow{
		Used:          truncatePercent(w.UsedPercent),
		Limit:         models.DefaultWindowLimit,
		ResetAt:       w.ResetsAt.t,
		ResetIn:       w.ResetDescription,
		WindowMinutes: w.WindowMinutes,
	}
}

// truncatePercent drops the fraction, keeping the result within [0, MaxInt32].
func truncatePercent(p float64) int {
	switch {
	case math.IsNaN(p), p <= 0:
		return 0
	case p >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(p)
}

// ParseOne decodes a single usage object. It returns nil for blank or malformed input.
// A JSON null or a document without a provider yields a minimal record for fallback.
func ParseOne(data, fallback string) *models.UsageData {
	if strings.TrimSpace(data) == "" {
		return nil
	}

	var dto *usageDataDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		logger.Error("Failed to parse usage JSON", "provider", fallback, "error", err)
		return nil
	}
	if dto == nil {
		return &models.UsageData{Provider: fallback, FetchedAt: now()}
	}

	u := dto.toUsageData(fallback)
	return &u
}

// ParseList decodes either an array of usage objects or a single object.
// null array elements are skipped; malformed input yields an empty list.
func ParseList(data string) []models.UsageData {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var dtos []*usageDataDTO
		if err := json.Unmarshal(trimmed, &dtos); err != nil {
			logger.Error("Failed to parse usage JSON array", "error", err)
			return nil
		}
		out := make([]models.UsageData, 0, len(dtos))
		for _, d := range dtos {
			if d == nil {
				continue
			}
			out = append(out, d.toUsageData(""))
		}
		return out
	}

	var dto *usageDataDTO
	if err := json.Unmarshal(trimmed, &dto); err != nil {
		logger.Error("Failed to parse usage JSON object", "error", err)
		return nil
	}
	if dto == nil {
		return nil
	}
	return []models.UsageData{dto.toUsageData("")}
}
