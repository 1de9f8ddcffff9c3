package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CodePrefix 代码键前缀（跨表查找时优先于名称键）
const CodePrefix = "code:"

// NormalizeText trims, folds to upper case, strips diacritics and collapses
// internal whitespace to single spaces.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

// NameKey 名称对键：normalized(legal)+"|"+normalized(trade)
// Returns "" when both segments are empty.
func NameKey(legalName, tradeName string) string {
	legal := NormalizeText(legalName)
	trade := NormalizeText(tradeName)
	if legal == "" && trade == "" {
		return ""
	}
	return legal + "|" + trade
}

// CodeKey returns "code:"+normalized(code), or "" when code is blank.
func CodeKey(code string) string {
	c := NormalizeText(code)
	if c == "" {
		return ""
	}
	return CodePrefix + c
}

// ResolveKey picks the cross-table lookup key: the code key when a code is
// present, otherwise the name-pair key. Empty input yields "" and the caller
// must skip the write.
func ResolveKey(code, legalName, tradeName string) string {
	if k := CodeKey(code); k != "" {
		return k
	}
	return NameKey(legalName, tradeName)
}

// Lookup 按优先级排列的查找键（先 code，再名称对）
type Lookup struct {
	CodeKey string
	NameKey string
}

// NewLookup builds the ordered lookup for one business.
func NewLookup(code, legalName, tradeName string) Lookup {
	return Lookup{
		CodeKey: CodeKey(code),
		NameKey: NameKey(legalName, tradeName),
	}
}

// Empty reports whether neither key resolved.
func (l Lookup) Empty() bool {
	return l.CodeKey == "" && l.NameKey == ""
}
