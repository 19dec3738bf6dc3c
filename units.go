// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseMilli parses a decimal quantity in base units ("12.5", "12.5V")
// into thousandths. Digits beyond the third decimal are rejected.
func parseMilli(s, suffix string) (uint32, error) {
	orig := s
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, suffix), strings.ToLower(suffix))

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" || len(frac) > 3 {
		return 0, fmt.Errorf("invalid quantity %q", orig)
	}
	var w, f uint64
	var err error
	if whole != "" {
		if w, err = strconv.ParseUint(whole, 10, 32); err != nil {
			return 0, fmt.Errorf("invalid quantity %q", orig)
		}
	}
	if frac != "" {
		if f, err = strconv.ParseUint(frac+strings.Repeat("0", 3-len(frac)), 10, 32); err != nil {
			return 0, fmt.Errorf("invalid quantity %q", orig)
		}
	}
	v := w*1000 + f
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("quantity %q too large", orig)
	}
	return uint32(v), nil
}

// formatMilli renders thousandths as a decimal with three places.
func formatMilli(v uint32, suffix string) string {
	return fmt.Sprintf("%d.%03d%s", v/1000, v%1000, suffix)
}
