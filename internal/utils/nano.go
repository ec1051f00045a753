package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

var (
	NanoidSize     = 24
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func NanoID() string {
	return gonanoid.MustGenerate(nanoidAlphabet, NanoidSize)
}

// PrefixedID returns a nanoid with a readable type prefix, e.g. "chk_...".
func PrefixedID(prefix string) string {
	return prefix + "_" + NanoID()
}
