package filter

import (
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crmcore/model"
)

// SortKey orders by one column.
type SortKey struct {
	Table  string
	Column string
	Desc   bool
}

// sortable lists the columns a caller may sort by, keyed by both the
// snake_case column name and its camelCase alias.
type sortable struct {
	table   string
	columns map[string]string
	def     string
}

func newSortable(table, def string, columns ...string) sortable {
	s := sortable{table: table, def: def, columns: make(map[string]string, 2*len(columns))}
	for _, c := range columns {
		s.columns[c] = c
		s.columns[camel(c)] = c
	}
	return s
}

func camel(snake string) string {
	parts := strings.Split(snake, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

var (
	customerSort = newSortable("customers", "-created_at", "id", "name", "email", "phone", "created_at", "updated_at")
	productSort  = newSortable("products", "name", "id", "name", "price", "stock", "created_at", "updated_at")
	orderSort    = newSortable("orders", "-order_date", "id", "order_date", "total_amount", "status", "created_at", "updated_at")
)

// parse reads "field" or "-field". An empty raw value selects the default.
func (s sortable) parse(raw string) ([]SortKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = s.def
	}
	desc := strings.HasPrefix(raw, "-")
	col, ok := s.columns[strings.TrimPrefix(raw, "-")]
	if !ok {
		return nil, model.Invalid("orderBy", "unknown sort key %q; allowed: %s", raw, strings.Join(s.allowed(), ", "))
	}
	keys := []SortKey{{Table: s.table, Column: col, Desc: desc}}
	if col != "id" {
		keys = append(keys, SortKey{Table: s.table, Column: "id"})
	}
	return keys, nil
}

func (s sortable) allowed() []string {
	out := make([]string, 0, len(s.columns))
	for k, v := range s.columns {
		if k == v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Compose folds criteria into one conjunction and appends the sort order.
// No criteria select every row.
func Compose(criteria []Criterion, keys []SortKey) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		for _, c := range criteria {
			q = c.apply(q)
		}
		if len(keys) == 0 {
			return q
		}
		cols := make([]clause.OrderByColumn, 0, len(keys))
		for _, k := range keys {
			cols = append(cols, clause.OrderByColumn{
				Column: clause.Column{Table: k.Table, Name: k.Column},
				Desc:   k.Desc,
			})
		}
		return q.Order(clause.OrderBy{Columns: cols})
	}
}
