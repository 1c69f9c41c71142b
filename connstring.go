package tenantdb

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultConnectionOptions are merged under the options carried by a
// connection string; options supplied by the caller win on conflict.
var DefaultConnectionOptions = map[string]string{
	"w":       "1",
	"journal": "true",
}

// CanonicalConnString splits connString into its address and option query,
// merges the options over DefaultConnectionOptions and re-serializes them.
// The result is what drivers dial. Registry keys use the raw string instead,
// so textually different but equivalent strings stay distinct keys.
func CanonicalConnString(connString string) (string, error) {
	base, rawQuery, _ := strings.Cut(connString, "?")
	passed, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse connection options %q: %w", rawQuery, err)
	}
	options := url.Values{}
	for k, v := range DefaultConnectionOptions {
		options.Set(k, v)
	}
	for k, vs := range passed {
		options[k] = vs
	}
	return base + "?" + options.Encode(), nil
}

// redactConnString hides the password of a connection string for logs and errors.
func redactConnString(connString string) string {
	schemeEnd := strings.Index(connString, "://")
	if schemeEnd < 0 {
		return connString
	}
	rest := connString[schemeEnd+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return connString
	}
	user, _, hasPassword := strings.Cut(rest[:at], ":")
	if !hasPassword {
		return connString
	}
	return connString[:schemeEnd+3] + user + ":xxxxx" + rest[at:]
}
