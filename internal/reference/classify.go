package reference

import (
	"strings"

	"github.com/iliyamo/convention-desk/internal/model"
)

// synonyms maps each ledger to the reference prefixes that identify it.
// Abbreviations come first; the last entries are the full words that are
// also accepted anywhere inside the reference.
var synonyms = []struct {
	kind  model.ServiceType
	abbr  []string
	words []string
}{
	{model.ServiceRegistration, []string{"REG", "REGN"}, []string{"REGISTRATION", "REGISTER"}},
	{model.ServiceDinner, []string{"DIN", "DNR"}, []string{"DINNER"}},
	{model.ServiceAccommodation, []string{"ACC", "ACCOM"}, []string{"ACCOMMODATION", "HOTEL", "LODGING"}},
	{model.ServiceBrochure, []string{"BRO", "BRC"}, []string{"BROCHURE"}},
	{model.ServiceGoodwill, []string{"GW", "GWM"}, []string{"GOODWILL"}},
	{model.ServiceDonation, []string{"DON"}, []string{"DONATION", "DONATE"}},
}

// metadataKeys are consulted in order on the charge metadata.
var metadataKeys = []string{"service_type", "serviceType", "type", "service"}

// Classify decides which ledger a payment belongs to.  A service type named in
// the charge metadata wins; otherwise the reference text is matched.  The
// result is ServiceUnknown when neither signal is recognised.
func Classify(ref string, metadata map[string]any) model.ServiceType {
	if k := FromMetadata(metadata); k != model.ServiceUnknown {
		return k
	}
	return FromReference(ref)
}

// FromMetadata reads the service type from charge metadata.
func FromMetadata(metadata map[string]any) model.ServiceType {
	for _, key := range metadataKeys {
		v, ok := metadata[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k := Lookup(s); k != model.ServiceUnknown {
			return k
		}
	}
	return model.ServiceUnknown
}

// FromReference matches the reference text case-insensitively.  The leading
// segment may be any synonym; later segments only match full words.
func FromReference(ref string) model.ServiceType {
	segs := segments(ref)
	if len(segs) == 0 {
		return model.ServiceUnknown
	}
	if k := Lookup(segs[0]); k != model.ServiceUnknown {
		return k
	}
	for _, seg := range segs[1:] {
		for _, row := range synonyms {
			for _, w := range row.words {
				if seg == w {
					return row.kind
				}
			}
		}
	}
	return model.ServiceUnknown
}

// Lookup resolves a single word (canonical name, abbreviation or full word).
func Lookup(word string) model.ServiceType {
	w := strings.ToUpper(strings.TrimSpace(word))
	if w == "" {
		return model.ServiceUnknown
	}
	if k := model.ParseServiceType(w); k != model.ServiceUnknown {
		return k
	}
	for _, row := range synonyms {
		for _, s := range row.abbr {
			if w == s {
				return row.kind
			}
		}
		for _, s := range row.words {
			if w == s {
				return row.kind
			}
		}
	}
	return model.ServiceUnknown
}

func segments(ref string) []string {
	return strings.FieldsFunc(strings.ToUpper(ref), func(r rune) bool {
		switch r {
		case '-', '_', ':', '/', '.', ' ':
			return true
		}
		return false
	})
}
