package task

// Sheet is a named grid of rows, reported as part of a Table.
type Sheet struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func NewSheet(name string, columns ...string) *Sheet {
	return &Sheet{Name: name, Columns: columns, Rows: [][]interface{}{}}
}

func (s *Sheet) AddRow(values ...interface{}) {
	s.Rows = append(s.Rows, values)
}

// RemoveRow drops the row at index i; out of range indexes are ignored.
func (s *Sheet) RemoveRow(i int) {
	if i < 0 || i >= len(s.Rows) {
		return
	}
	s.Rows = append(s.Rows[:i], s.Rows[i+1:]...)
}

// Table groups sheets for Lifecycle.Report.
type Table struct {
	Name   string   `json:"name"`
	Sheets []*Sheet `json:"sheets"`
}

func NewTable(name string) *Table {
	return &Table{Name: name, Sheets: []*Sheet{}}
}

func (t *Table) AddSheet(s *Sheet) {
	t.Sheets = append(t.Sheets, s)
}

func (t *Table) RemoveSheet(i int) {
	if i < 0 || i >= len(t.Sheets) {
		return
	}
	t.Sheets = append(t.Sheets[:i], t.Sheets[i+1:]...)
}
