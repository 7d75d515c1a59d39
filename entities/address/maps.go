//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package address

import "strings"

const googleMapsPlacePrefix = "https://www.google.com/maps/place/"

// GoogleMapsURL returns the Google Maps place link for an address. Every
// byte outside the unreserved set and '/' is percent-encoded, so spaces
// become %20 (not '+') and accented characters are encoded as UTF-8.
func GoogleMapsURL(address string) string {
	return googleMapsPlacePrefix + quote(address)
}

const upperhex = "0123456789ABCDEF"

// quote is url.PathEscape minus its sub-delims allowance: ',', ';', '=' etc.
// must be encoded too, otherwise the place path is interpreted differently.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '/':
		return true
	}
	return false
}
