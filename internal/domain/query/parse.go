package query

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	keyRegex     = regexp.MustCompile(`^([^\[\]]+)((?:\[[^\[\]]*\])*)$`)
	segmentRegex = regexp.MustCompile(`\[([^\[\]]*)\]`)
	pathRegex    = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
)

// Limits configures pagination defaults.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// splitKey turns "filter[a][value][]" into ("filter", ["a", "value", ""]).
func splitKey(key string) (string, []string, bool) {
	m := keyRegex.FindStringSubmatch(key)
	if m == nil {
		return "", nil, false
	}
	var segs []string
	for _, s := range segmentRegex.FindAllStringSubmatch(m[2], -1) {
		segs = append(segs, s[1])
	}
	return m[1], segs, true
}

type indexedValue struct {
	idx   int
	order int
	value string
}

type filterItem struct {
	id          string
	path        string
	operator    string
	values      []indexedValue
	hasValue    bool
	memberOf    string
	isGroup     bool
	isLeaf      bool
	conjunction string
}

// Parse reads filter, sort, page, search and facets parameters.
func Parse(values url.Values, limits Limits) (Query, error) {
	var q Query

	items := map[string]*filterItem{}
	sortItems := map[string]*Sort{}
	order := 0

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		root, segs, ok := splitKey(key)
		if !ok {
			continue
		}
		switch root {
		case "filter":
			if len(segs) == 0 || segs[0] == "" {
				return Query{}, fmt.Errorf("filter parameter %q needs an id", key)
			}
			it := items[segs[0]]
			if it == nil {
				it = &filterItem{id: segs[0]}
				items[segs[0]] = it
			}
			for _, v := range values[key] {
				order++
				if err := it.set(segs[1:], v, order); err != nil {
					return Query{}, fmt.Errorf("filter[%s]: %w", segs[0], err)
				}
			}
		case "sort":
			if len(segs) == 0 {
				for _, v := range values[key] {
					parsed, err := parseSortString(v)
					if err != nil {
						return Query{}, err
					}
					q.Sort = append(q.Sort, parsed...)
				}
				continue
			}
			if len(segs) != 2 {
				return Query{}, fmt.Errorf("malformed sort parameter %q", key)
			}
			s := sortItems[segs[0]]
			if s == nil {
				s = &Sort{Direction: Asc}
				sortItems[segs[0]] = s
			}
			v := values.Get(key)
			switch segs[1] {
			case "path":
				s.Path = v
			case "direction":
				d := Direction(strings.ToUpper(v))
				if d != Asc && d != Desc {
					return Query{}, fmt.Errorf("invalid sort direction %q", v)
				}
				s.Direction = d
			case "langcode":
				s.Langcode = v
			default:
				return Query{}, fmt.Errorf("unknown sort attribute %q", segs[1])
			}
		}
	}

	if len(items) > MaxConditions {
		return Query{}, fmt.Errorf("too many filter items (max %d)", MaxConditions)
	}
	tree, err := buildTree(items)
	if err != nil {
		return Query{}, err
	}
	q.Filter = tree

	sorts, err := collectSorts(sortItems)
	if err != nil {
		return Query{}, err
	}
	q.Sort = append(q.Sort, sorts...)

	page, err := parsePage(values, limits)
	if err != nil {
		return Query{}, err
	}
	q.Page = page

	q.Search = strings.TrimSpace(values.Get("s"))
	if q.Search == "" {
		q.Search = strings.TrimSpace(values.Get("search"))
	}
	if f := values.Get("facets"); f != "" {
		for _, name := range strings.Split(f, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !pathRegex.MatchString(name) {
				return Query{}, fmt.Errorf("invalid facet %q", name)
			}
			q.Facets = append(q.Facets, name)
		}
	}
	return q, nil
}

func (it *filterItem) set(segs []string, v string, order int) error {
	if len(segs) == 0 {
		// filter[field]=value shorthand
		it.isLeaf = true
		it.hasValue = true
		it.values = append(it.values, indexedValue{idx: -1, order: order, value: v})
		return nil
	}
	switch segs[0] {
	case "condition":
		return it.set(segs[1:], v, order)
	case "group":
		it.isGroup = true
		if len(segs) != 2 {
			return fmt.Errorf("malformed group attribute")
		}
		switch segs[1] {
		case "conjunction":
			it.conjunction = v
		case "memberOf":
			it.memberOf = v
		default:
			return fmt.Errorf("unknown group attribute %q", segs[1])
		}
	case "path":
		it.isLeaf = true
		it.path = v
	case "operator":
		it.isLeaf = true
		it.operator = v
	case "memberOf":
		it.memberOf = v
	case "value":
		it.isLeaf = true
		it.hasValue = true
		idx := -1
		if len(segs) > 1 && segs[1] != "" {
			n, err := strconv.Atoi(segs[1])
			if err != nil {
				return fmt.Errorf("invalid value index %q", segs[1])
			}
			idx = n
		}
		it.values = append(it.values, indexedValue{idx: idx, order: order, value: v})
	default:
		return fmt.Errorf("unknown attribute %q", segs[0])
	}
	return nil
}

func (it *filterItem) condition() (Condition, error) {
	vals := make([]indexedValue, len(it.values))
	copy(vals, it.values)
	sort.SliceStable(vals, func(i, j int) bool {
		if vals[i].idx != vals[j].idx {
			return vals[i].idx < vals[j].idx
		}
		return vals[i].order < vals[j].order
	})
	values := make([]string, len(vals))
	for i, v := range vals {
		values[i] = v.value
	}

	path := it.path
	if path == "" {
		path = it.id
	}
	op := Operator(strings.ToUpper(strings.TrimSpace(it.operator)))
	if op == "" {
		op = OpEq
		if len(values) > 1 {
			op = OpIn
		}
	}
	if !it.hasValue && op != OpIsNull && op != OpIsNotNull {
		return Condition{}, fmt.Errorf("value is required")
	}
	c, err := NewCondition(path, op, values...)
	if err != nil {
		return Condition{}, err
	}
	c.ID = it.id
	return c, nil
}

// buildTree nests the flat filter items under their memberOf parents.
// Items without memberOf belong to the implicit root AND group.
func buildTree(items map[string]*filterItem) (Group, error) {
	children := map[string][]string{}
	for id, it := range items {
		if id == RootID {
			return Group{}, fmt.Errorf("filter id %q is reserved", RootID)
		}
		if it.isGroup && it.isLeaf {
			return Group{}, fmt.Errorf("filter[%s] cannot be both a group and a condition", id)
		}
		parent := it.memberOf
		if parent == "" {
			parent = RootID
		}
		if parent != RootID {
			p, ok := items[parent]
			if !ok {
				return Group{}, fmt.Errorf("filter[%s] is a member of unknown group %q", id, parent)
			}
			if !p.isGroup {
				return Group{}, fmt.Errorf("filter[%s] is a member of %q which is not a group", id, parent)
			}
		}
		children[parent] = append(children[parent], id)
	}
	for k := range children {
		sort.Strings(children[k])
	}

	placed := 0
	var build func(id string, conj Conjunction) (Group, error)
	build = func(id string, conj Conjunction) (Group, error) {
		g := Group{ID: id, Conjunction: conj}
		for _, childID := range children[id] {
			it := items[childID]
			placed++
			if it.isGroup {
				c := Conjunction(strings.ToUpper(it.conjunction))
				if c == "" {
					c = And
				}
				if c != And && c != Or {
					return Group{}, fmt.Errorf("filter[%s]: invalid conjunction %q", childID, it.conjunction)
				}
				sub, err := build(childID, c)
				if err != nil {
					return Group{}, err
				}
				g.Groups = append(g.Groups, sub)
				continue
			}
			cond, err := it.condition()
			if err != nil {
				return Group{}, fmt.Errorf("filter[%s]: %w", childID, err)
			}
			g.Conditions = append(g.Conditions, cond)
		}
		return g, nil
	}

	root, err := build(RootID, And)
	if err != nil {
		return Group{}, err
	}
	// groups that only reference each other are never reached from the root
	if placed != len(items) {
		return Group{}, fmt.Errorf("filter groups form a cycle")
	}
	return root, nil
}

func parseSortString(s string) ([]Sort, error) {
	var out []Sort
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := Asc
		if strings.HasPrefix(part, "-") {
			dir = Desc
			part = part[1:]
		}
		if !pathRegex.MatchString(part) {
			return nil, fmt.Errorf("invalid sort field %q", part)
		}
		out = append(out, Sort{Path: part, Direction: dir})
	}
	return out, nil
}

func collectSorts(items map[string]*Sort) ([]Sort, error) {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	out := make([]Sort, 0, len(ids))
	for _, id := range ids {
		s := items[id]
		if s.Path == "" {
			return nil, fmt.Errorf("sort[%s] needs a path", id)
		}
		if !pathRegex.MatchString(s.Path) {
			return nil, fmt.Errorf("invalid sort field %q", s.Path)
		}
		out = append(out, *s)
	}
	return out, nil
}

func parsePage(values url.Values, limits Limits) (Page, error) {
	p := Page{Limit: limits.DefaultLimit}
	if v := values.Get("page[limit]"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("invalid page[limit] %q", v)
		}
		if n > 0 {
			p.Limit = n
		}
	}
	if limits.MaxLimit > 0 && p.Limit > limits.MaxLimit {
		p.Limit = limits.MaxLimit
	}
	if v := values.Get("page[offset]"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("invalid page[offset] %q", v)
		}
		p.Offset = n
	} else if v := values.Get("page[number]"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("invalid page[number] %q", v)
		}
		if p.Limit > 0 && n > math.MaxInt/p.Limit {
			return Page{}, fmt.Errorf("page[number] %q is out of range", v)
		}
		p.Offset = n * p.Limit
	}
	return p, nil
}
