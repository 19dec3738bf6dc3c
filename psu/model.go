// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import "fmt"

// ProductModel is a product identified by the MODEL register.
type ProductModel uint16

const (
	XY3607F ProductModel = 3607
	XY6020L ProductModel = 6020
	XY6506  ProductModel = 6506
	XY6509  ProductModel = 6509
	XY7025  ProductModel = 7025
	XY12522 ProductModel = 12522
)

type modelInfo struct {
	name    string
	scaling *ScalingFactors
	// reselect: the device only applies a rewritten active preset group
	// after the group is selected again.
	reselect bool
}

var (
	scaleMilliAmp = NewScalingFactors(10, 1, 100, 1)
	scaleCentiAmp = NewScalingFactors(10, 10, 1000, 10)
)

var models = map[ProductModel]modelInfo{
	XY3607F: {"XY3607F", &scaleMilliAmp, true},
	XY6020L: {"XY6020L", &scaleCentiAmp, true},
	XY6506:  {"XY6506", nil, true},
	XY6509:  {"XY6509", nil, true},
	XY7025:  {"XY7025", &scaleCentiAmp, true},
	XY12522: {"XY12522", &scaleCentiAmp, true},
}

// ParseProductModel maps a MODEL register value to a product.
func ParseProductModel(code uint16) (ProductModel, error) {
	if _, ok := models[ProductModel(code)]; !ok {
		return 0, &UnknownModelError{Code: code}
	}
	return ProductModel(code), nil
}

// ProductModels returns the recognised products.
func ProductModels() []ProductModel {
	return []ProductModel{XY3607F, XY6020L, XY6506, XY6509, XY7025, XY12522}
}

func (m ProductModel) String() string {
	if info, ok := models[m]; ok {
		return info.name
	}
	return fmt.Sprintf("ProductModel(%d)", uint16(m))
}

// ScalingFactors returns the confirmed factors of m. ok is false for
// products whose factors are not known.
func (m ProductModel) ScalingFactors() (s ScalingFactors, ok bool) {
	info, found := models[m]
	if !found || info.scaling == nil {
		return ScalingFactors{}, false
	}
	return *info.scaling, true
}

// ReselectAfterPresetWrite reports whether the active preset group must be
// selected again before rewritten values take effect. Unknown products
// report true.
func (m ProductModel) ReselectAfterPresetWrite() bool {
	info, ok := models[m]
	return !ok || info.reselect
}
