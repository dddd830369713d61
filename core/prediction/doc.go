// Package prediction queries pre-trained cash-demand models. Models are
// fitted by an external pipeline and shipped as JSON artifacts; this package
// decodes them, builds the regressor inputs they were trained with and turns
// their output into validated forecast windows.
package prediction
