package icat

import "strings"

// defaultPrefixes maps ISIS instrument names to the prefix used in their data
// file names where the two differ.
var defaultPrefixes = map[string]string{
	"CRISP":   "CSP",
	"HRPD":    "HRP",
	"IRIS":    "IRS",
	"MAPS":    "MAP",
	"MARI":    "MAR",
	"MERLIN":  "MER",
	"NIMROD":  "NIM",
	"OSIRIS":  "OSI",
	"POLARIS": "POL",
	"SANDALS": "SLS",
	"SURF":    "SRF",
	"TOSCA":   "TSC",
	"VESUVIO": "EVS",
}

// InstrumentPrefix returns the data file name prefix of an instrument.
// overrides take precedence over the built-in table; instruments in neither
// use their own name.
func InstrumentPrefix(instrument string, overrides map[string]string) string {
	name := strings.ToUpper(instrument)
	if p, ok := overrides[name]; ok && p != "" {
		return p
	}
	if p, ok := defaultPrefixes[name]; ok {
		return p
	}
	return name
}
