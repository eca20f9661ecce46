package catalog

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// utilityTypeByID is the fixed UtilityTypeId encoding the catalog CSV ships
// with: 2=electric, 3=water, 4=gas, 5=trash, 6=sewer, 8=internet.
var utilityTypeByID = map[int]lookup.UtilityType{
	2: lookup.UtilityElectric,
	3: lookup.UtilityWater,
	4: lookup.UtilityGas,
	5: lookup.UtilityTrash,
	6: lookup.UtilitySewer,
	8: lookup.UtilityInternet,
}

// LoadRowsFromCSV reads a catalog CSV with header columns
// ID, UtilityTypeId, Title, URL, Phone, Source into catalog Row values.
// Rows with an unrecognized UtilityTypeId are skipped rather than failing
// the whole load — the catalog ships columns this system doesn't resolve
// (e.g. source-only rows) alongside the ones it does.
func LoadRowsFromCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}

	var rows []Row
	for _, rec := range records[1:] {
		id, err := strconv.Atoi(field(rec, col, "ID"))
		if err != nil {
			continue
		}
		typeID, err := strconv.Atoi(field(rec, col, "UtilityTypeId"))
		if err != nil {
			continue
		}
		ut, ok := utilityTypeByID[typeID]
		if !ok {
			continue
		}
		rows = append(rows, Row{
			ID:          id,
			Title:       field(rec, col, "Title"),
			URL:         field(rec, col, "URL"),
			Phone:       field(rec, col, "Phone"),
			UtilityType: ut,
		})
	}
	return rows, nil
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}
