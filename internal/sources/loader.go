package sources

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "sources: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "sources: unmarshal %s", path)
	}
	return nil
}

// ReadJSONInto reads and unmarshals any JSON reference file into v. An empty
// path is a no-op, leaving v at its zero value, matching the rest of this
// package's not-every-source-is-wired convention.
func ReadJSONInto(path string, v any) error {
	if path == "" {
		return nil
	}
	return readJSONFile(path, v)
}

// ReadStringList reads a flat JSON array of strings, used for the
// large-IOU-names and local-utility-whitelist reference files.
func ReadStringList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	var list []string
	if err := readJSONFile(path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// gasZipFile is the on-disk shape of the gas ZIP reference table: a
// 5-digit table and a 3-digit fallback table, loaded into one GasZipMap.
type gasZipFile struct {
	Zip5 map[string]GasZipEntry `json:"zip5"`
	Zip3 map[string]GasZipEntry `json:"zip3"`
}

// LoadGasZip reads the gas ZIP reference table and builds the adapter. An
// empty or missing path yields a nil adapter rather than an error — not
// every deployment needs every source wired.
func LoadGasZip(path string) (*GasZipMap, error) {
	if path == "" {
		return nil, nil
	}
	var f gasZipFile
	if err := readJSONFile(path, &f); err != nil {
		return nil, err
	}
	return NewGasZipMap(f.Zip5, f.Zip3), nil
}

// LoadCountyGas reads the state+county gas reference table.
func LoadCountyGas(path string) (*CountyGas, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string]CountyGasEntry
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewCountyGas(table), nil
}

// LoadGeorgiaEMC reads the Georgia county-to-EMC reference table.
func LoadGeorgiaEMC(path string) (*GeorgiaEMC, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string][]GeorgiaEMCEntry
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewGeorgiaEMC(table), nil
}

// LoadRemainingStatesZip reads the catch-all dominance-weighted ZIP table.
func LoadRemainingStatesZip(path string) (*RemainingStatesZip, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string]RemainingStatesEntry
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewRemainingStatesZip(table), nil
}

// LoadSpecialDistricts reads the water special-district ZIP table.
func LoadSpecialDistricts(path string) (*SpecialDistricts, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string]string
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewSpecialDistricts(table), nil
}

// LoadEIAZip reads the EIA Form 861 ZIP-to-utility table.
func LoadEIAZip(path string) (*EIAZip, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string][]string
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewEIAZip(table), nil
}

// LoadFindEnergyCity reads the FindEnergy.com state+city table.
func LoadFindEnergyCity(path string) (*FindEnergyCity, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string]string
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewFindEnergyCity(table), nil
}

// LoadStateGasDefault reads the one-provider-per-state gas fallback table.
func LoadStateGasDefault(path string) (*StateGasDefault, error) {
	if path == "" {
		return nil, nil
	}
	var table map[string]StateGasEntry
	if err := readJSONFile(path, &table); err != nil {
		return nil, err
	}
	return NewStateGasDefault(table), nil
}
