package tickers

import (
	"fmt"
	"strconv"

	"stockwatch/internal/types"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// tierTranslation maps OTC tier codes to their display names
var tierTranslation = map[string]string{
	"QB": "OTCQB",
	"PC": "Pink Current Information",
	"PL": "Pink Limited Information",
	"PN": "Pink No Information",
	"EM": "Expert Market",
	"GM": "Grey Market",
}

// Securities tracks a ticker's share structure and market tier
type Securities struct {
	Base
	printer *message.Printer
}

// NewSecurities creates the securities record type
func NewSecurities() *Securities {
	return &Securities{printer: message.NewPrinter(language.English)}
}

func (s *Securities) Name() string {
	return "securities"
}

func (s *Securities) Endpoint() string {
	return "https://backend.otcmarkets.com/otcapi/stock/trade/inside/%s/data"
}

// Hierarchy orders the market tiers; a move down the scale is a
// regression and is not alert-worthy.
func (s *Securities) Hierarchy() map[string][]string {
	return map[string][]string{
		"tierDisplayName": {
			"Expert Market", "Grey Market", "Pink No Information",
			"Pink Limited Information", "Pink Current Information",
			"OTCQB", "OTCQX International",
		},
		"tierCode": {"GM", "EM", "PN", "PL", "PC", "QB"},
	}
}

func (s *Securities) NestedKeys() map[string]int {
	return map[string]int{"transferAgents": 2}
}

func (s *Securities) FilterKeys() []string {
	return []string{"tierStartDate", "tierId"}
}

// extendedKeys are share-count fields whose changes carry a ratio annotation
func (s *Securities) extendedKeys() []string {
	return []string{"authorizedShares", "outstandingShares", "restrictedShares", "unrestrictedShares"}
}

// EditDiff reformats share counts with thousands separators and a
// percentage-change annotation, and translates tier codes to their
// display names.
func (s *Securities) EditDiff(diff *types.Diff) *types.Diff {
	if diff.ChangedKey == "tierCode" {
		if translated, ok := tierTranslation[fmt.Sprint(diff.Old)]; ok {
			diff.Old = translated
		}
		if translated, ok := tierTranslation[fmt.Sprint(diff.New)]; ok {
			diff.New = translated
		}
		return diff
	}

	newCount, newOK := toInt(diff.New)
	if !newOK {
		return diff
	}

	oldCount, oldOK := toInt(diff.Old)
	if !oldOK {
		oldCount = 0
	}

	formattedOld := s.printer.Sprintf("%d", oldCount)
	formattedNew := s.printer.Sprintf("%d", newCount)

	if s.isExtendedKey(diff.ChangedKey) {
		if ratio := calcRatio(oldCount, newCount); ratio != 0 {
			formattedNew = fmt.Sprintf("%s (%.0f%%)", formattedNew, ratio*100)
		}
	}

	diff.Old, diff.New = formattedOld, formattedNew
	return diff
}

func (s *Securities) isExtendedKey(key string) bool {
	for _, k := range s.extendedKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// calcRatio returns the relative change from old to new, 0 when undefined
func calcRatio(oldCount, newCount int64) float64 {
	if oldCount == 0 {
		return 0
	}
	return float64(newCount-oldCount) / float64(oldCount)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
