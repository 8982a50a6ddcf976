// Package assets defines the asset kinds metapipe converts and the classifier
// that partitions a source tree into per-kind selections.
//
// A Kind carries its own source extensions and output formats as data, so the
// classifier, the conversion orchestrators, the reclaimer, and the manifest all
// switch on one closed type. Asset keys are source-root-relative, slash
// separated, NFC normalized, and keep their original case and extension.
package assets
