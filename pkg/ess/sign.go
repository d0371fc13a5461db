package ess

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// Separator is one hypothesis for the bytes joining the signed fields.
type Separator string

const (
	// SeparatorCRLF is an actual carriage-return line-feed pair.
	SeparatorCRLF Separator = "\r\n"
	// SeparatorLiteral is the four characters backslash, r, backslash, n.
	SeparatorLiteral Separator = `\r\n`
	// SeparatorLF is a single line feed.
	SeparatorLF Separator = "\n"
)

// Separators lists every hypothesis in the order they are tried.
var Separators = []Separator{SeparatorCRLF, SeparatorLiteral, SeparatorLF}

// Name returns a printable name for the separator.
func (s Separator) Name() string {
	switch s {
	case SeparatorCRLF:
		return "crlf"
	case SeparatorLiteral:
		return "literal"
	case SeparatorLF:
		return "lf"
	}
	return strconv.Quote(string(s))
}

// Sign returns the lowercase hex MD5 of path, token and timestamp joined by
// sep.
func Sign(path, token string, timestampMillis int64, sep Separator) string {
	plain := path + string(sep) + token + string(sep) + strconv.FormatInt(timestampMillis, 10)
	sum := md5.Sum([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Signature is a candidate signature under one separator hypothesis.
type Signature struct {
	Separator Separator
	Value     string
}

// Signatures returns one candidate per separator, in the order they should
// be tried.
func Signatures(path, token string, timestampMillis int64) []Signature {
	out := make([]Signature, len(Separators))
	for i, sep := range Separators {
		out[i] = Signature{Separator: sep, Value: Sign(path, token, timestampMillis, sep)}
	}
	return out
}
