// Package sqlguard validates SQL before it reaches a session warehouse.
// Only single read-only SELECT statements over the session's own datasets
// are allowed through; everything else fails with an UnsafeQueryError.
package sqlguard

import (
	"fmt"
	"strings"

	"github.com/healthlens/healthlens/internal/schema"
)

// UnsafeQueryError reports why a statement was rejected. The reason is safe
// to show to the end user.
type UnsafeQueryError struct {
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	return "unsafe query: " + e.Reason
}

func unsafe(format string, args ...any) *UnsafeQueryError {
	return &UnsafeQueryError{Reason: fmt.Sprintf(format, args...)}
}

var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "create": {},
	"alter": {}, "truncate": {}, "attach": {}, "detach": {}, "copy": {},
	"export": {}, "import": {}, "install": {}, "load": {}, "call": {},
	"pragma": {}, "set": {}, "grant": {}, "revoke": {}, "vacuum": {},
	"merge": {}, "execute": {}, "prepare": {},
}

// IsReservedWord reports whether name matches a keyword the validator always
// rejects. Ingestion uses it to keep cleaned column and dataset names
// queryable.
func IsReservedWord(name string) bool {
	_, ok := forbiddenKeywords[strings.ToLower(name)]
	return ok
}

var blockedFunctions = map[string]struct{}{
	"read_csv": {}, "read_csv_auto": {}, "read_parquet": {}, "read_json": {},
	"read_json_auto": {}, "read_json_objects": {}, "read_text": {},
	"read_blob": {}, "glob": {}, "getenv": {}, "sqlite_scan": {},
	"postgres_scan": {}, "duckdb_databases": {}, "duckdb_settings": {},
	"duckdb_tables": {},
}

var allowedKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "group": {}, "by": {}, "order": {},
	"limit": {}, "offset": {}, "as": {}, "and": {}, "or": {}, "not": {},
	"case": {}, "when": {}, "then": {}, "else": {}, "end": {}, "join": {},
	"inner": {}, "left": {}, "right": {}, "full": {}, "outer": {}, "cross": {},
	"on": {}, "using": {}, "having": {}, "distinct": {}, "with": {},
	"union": {}, "intersect": {}, "except": {}, "all": {}, "asc": {},
	"desc": {}, "between": {}, "in": {}, "is": {}, "null": {}, "like": {},
	"ilike": {}, "exists": {}, "nulls": {}, "first": {}, "last": {},
	"true": {}, "false": {}, "interval": {}, "over": {}, "partition": {},
	"rows": {}, "range": {}, "preceding": {}, "following": {}, "unbounded": {},
	"current": {}, "row": {}, "filter": {}, "escape": {}, "qualify": {},
	"values": {}, "lateral": {},
	// type names, for CAST targets
	"bigint": {}, "integer": {}, "int": {}, "smallint": {}, "double": {},
	"float": {}, "real": {}, "decimal": {}, "numeric": {}, "varchar": {},
	"text": {}, "boolean": {}, "bool": {}, "date": {}, "timestamp": {},
	"time": {}, "year": {}, "month": {}, "day": {}, "hour": {}, "minute": {},
	"second": {},
}

var allowedFunctions = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "median": {},
	"mode": {}, "stddev": {}, "stddev_pop": {}, "stddev_samp": {},
	"variance": {}, "var_pop": {}, "var_samp": {}, "corr": {},
	"percentile_cont": {}, "percentile_disc": {}, "quantile": {},
	"quantile_cont": {}, "quantile_disc": {}, "abs": {}, "round": {},
	"floor": {}, "ceil": {}, "ceiling": {}, "sqrt": {}, "ln": {}, "log": {},
	"exp": {}, "power": {}, "pow": {}, "coalesce": {}, "nullif": {},
	"greatest": {}, "least": {}, "lower": {}, "upper": {}, "trim": {},
	"ltrim": {}, "rtrim": {}, "substr": {}, "substring": {}, "length": {},
	"concat": {}, "concat_ws": {}, "replace": {}, "split_part": {},
	"contains": {}, "starts_with": {}, "regexp_matches": {},
	"regexp_replace": {}, "regexp_extract": {}, "strftime": {},
	"strptime": {}, "date_trunc": {}, "date_part": {}, "date_diff": {},
	"date_add": {}, "date_sub": {}, "datediff": {}, "extract": {},
	"year": {}, "month": {}, "day": {}, "hour": {}, "minute": {},
	"second": {}, "dayname": {}, "monthname": {}, "now": {}, "today": {},
	"current_date": {}, "current_timestamp": {}, "epoch": {}, "epoch_ms": {},
	"row_number": {}, "rank": {}, "dense_rank": {}, "ntile": {}, "lag": {},
	"lead": {}, "first_value": {}, "last_value": {}, "cast": {},
	"try_cast": {}, "typeof": {}, "list": {}, "string_agg": {},
	"array_agg": {}, "arg_max": {}, "arg_min": {}, "histogram": {},
	"if": {}, "ifnull": {}, "isnan": {}, "isinf": {}, "sign": {},
}

// Check validates sqlText against the session schema. A nil return means
// the statement may run as-is apart from trailing-semicolon normalization.
func Check(sqlText string, tables []schema.Table) error {
	tokens, err := tokenize(sqlText)
	if err != nil {
		return unsafe("%v", err)
	}

	// A single trailing semicolon is tolerated.
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == tokenSymbol && tokens[len(tokens)-1].value == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return unsafe("empty statement")
	}
	for _, tok := range tokens {
		if tok.kind == tokenSymbol && tok.value == ";" {
			return unsafe("multiple statements are not allowed")
		}
	}

	first := tokens[0]
	if first.kind != tokenIdent || (first.value != "select" && first.value != "with") {
		return unsafe("only SELECT statements are allowed")
	}

	datasets := make(map[string]struct{}, len(tables))
	columns := make(map[string]struct{})
	for _, table := range tables {
		datasets[strings.ToLower(table.Name)] = struct{}{}
		for _, column := range table.Columns {
			columns[strings.ToLower(column.Name)] = struct{}{}
		}
	}

	cteNames := collectCTENames(tokens)
	aliases := collectAliases(tokens, datasets, cteNames)

	for i, tok := range tokens {
		if tok.kind != tokenIdent && tok.kind != tokenQuotedIdent {
			continue
		}
		name := tok.value

		if tok.kind == tokenIdent {
			if _, forbidden := forbiddenKeywords[name]; forbidden {
				return unsafe("keyword %s is not allowed", strings.ToUpper(name))
			}
		}

		if isFunctionCall(tokens, i) {
			if _, blocked := blockedFunctions[name]; blocked {
				return unsafe("function %s is not allowed", name)
			}
			if _, ok := allowedFunctions[name]; !ok {
				return unsafe("function %s is not allowed", name)
			}
			continue
		}

		if tok.kind == tokenIdent {
			if _, ok := allowedKeywords[name]; ok {
				continue
			}
			// Niladic functions like current_date appear without parentheses.
			if _, ok := allowedFunctions[name]; ok {
				continue
			}
		}
		if _, ok := datasets[name]; ok {
			continue
		}
		if _, ok := cteNames[name]; ok {
			continue
		}
		if _, ok := aliases[name]; ok {
			continue
		}
		if _, ok := columns[name]; ok {
			continue
		}
		return unsafe("unknown identifier %q", name)
	}

	if err := checkTableRefs(tokens, datasets, cteNames); err != nil {
		return err
	}
	return nil
}

// collectCTENames finds names bound by WITH clauses using the "name AS ("
// shape.
func collectCTENames(tokens []token) map[string]struct{} {
	names := make(map[string]struct{})
	for i := 0; i+2 < len(tokens); i++ {
		if !isIdent(tokens[i]) {
			continue
		}
		if tokens[i+1].kind == tokenIdent && tokens[i+1].value == "as" &&
			tokens[i+2].kind == tokenSymbol && tokens[i+2].value == "(" {
			names[tokens[i].value] = struct{}{}
		}
	}
	return names
}

// collectAliases gathers both "expr AS name" aliases and bare table aliases
// ("FROM patients p").
func collectAliases(tokens []token, datasets, cteNames map[string]struct{}) map[string]struct{} {
	aliases := make(map[string]struct{})
	for i, tok := range tokens {
		if tok.kind == tokenIdent && tok.value == "as" && i+1 < len(tokens) && isIdent(tokens[i+1]) {
			aliases[tokens[i+1].value] = struct{}{}
		}
		// Bare subquery aliases: FROM (SELECT ...) q
		if tok.kind == tokenSymbol && tok.value == ")" && i+1 < len(tokens) && isIdent(tokens[i+1]) {
			next := tokens[i+1].value
			if _, keyword := allowedKeywords[next]; !keyword {
				aliases[next] = struct{}{}
			}
		}
	}
	for i := 0; i < len(tokens); i++ {
		if tokens[i].kind != tokenIdent || (tokens[i].value != "from" && tokens[i].value != "join") {
			continue
		}
		if i+1 >= len(tokens) || !isIdent(tokens[i+1]) {
			continue
		}
		ref := tokens[i+1].value
		_, isKnown := datasets[ref]
		if !isKnown {
			_, isKnown = cteNames[ref]
		}
		if !isKnown {
			continue
		}
		if i+2 < len(tokens) && isIdent(tokens[i+2]) {
			next := tokens[i+2].value
			if _, keyword := allowedKeywords[next]; !keyword {
				aliases[next] = struct{}{}
			}
		}
	}
	return aliases
}

// checkTableRefs verifies every FROM/JOIN target is a session dataset or a
// CTE defined in the statement. Subselects open with a parenthesis and are
// validated through their own FROM clauses.
func checkTableRefs(tokens []token, datasets, cteNames map[string]struct{}) error {
	for i := 0; i < len(tokens); i++ {
		if tokens[i].kind != tokenIdent || (tokens[i].value != "from" && tokens[i].value != "join") {
			continue
		}
		if i+1 >= len(tokens) {
			return unsafe("dangling %s", strings.ToUpper(tokens[i].value))
		}
		next := tokens[i+1]
		if next.kind == tokenSymbol && next.value == "(" {
			continue
		}
		if !isIdent(next) {
			return unsafe("malformed %s clause", strings.ToUpper(tokens[i].value))
		}
		// EXTRACT(x FROM ts) puts an expression before FROM inside a call.
		if insideFunctionCall(tokens, i) {
			continue
		}
		if _, ok := datasets[next.value]; ok {
			continue
		}
		if _, ok := cteNames[next.value]; ok {
			continue
		}
		return unsafe("unknown table %q", next.value)
	}
	return nil
}

// insideFunctionCall reports whether position i is nested in an allow-listed
// function invocation such as EXTRACT(... FROM ...).
func insideFunctionCall(tokens []token, i int) bool {
	depth := 0
	for j := i - 1; j >= 0; j-- {
		tok := tokens[j]
		if tok.kind != tokenSymbol {
			continue
		}
		switch tok.value {
		case ")":
			depth++
		case "(":
			if depth == 0 {
				if j > 0 && tokens[j-1].kind == tokenIdent {
					_, ok := allowedFunctions[tokens[j-1].value]
					return ok
				}
				return false
			}
			depth--
		}
	}
	return false
}

func isFunctionCall(tokens []token, i int) bool {
	return tokens[i].kind == tokenIdent &&
		i+1 < len(tokens) &&
		tokens[i+1].kind == tokenSymbol && tokens[i+1].value == "("
}

func isIdent(tok token) bool {
	return tok.kind == tokenIdent || tok.kind == tokenQuotedIdent
}
