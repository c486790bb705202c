package parsers

import (
	"sort"
	"strings"
)

// Column describes one canonical column and the header spellings accepted for it
type Column struct {
	Name     string
	Aliases  []string
	Required bool
}

// ColumnSet is the header vocabulary of one input kind
type ColumnSet []Column

// Canonical column names
const (
	ColID             = "id"
	ColOperationDate  = "operation_date"
	ColAccountingDate = "accounting_date"
	ColDate           = "date"
	ColAmount         = "amount"
	ColDebit          = "debit"
	ColCredit         = "credit"
	ColCurrency       = "currency"
	ColDescription    = "description"
	ColReference      = "reference"
	ColAccount        = "account"
	ColBank           = "bank"
	ColBlocks         = "blocks_auto_reconcile"
	ColBlockReason    = "block_reason"
	ColCounterparty   = "counterparty"
)

// BankColumns is the vocabulary of bank statement exports. Amount may be
// given as a signed column or as separate debit and credit columns.
var BankColumns = ColumnSet{
	{Name: ColID, Aliases: []string{"id", "tx_id", "id_transaccion", "transaction_id", "nro_operacion"}},
	{Name: ColOperationDate, Aliases: []string{"operation_date", "fecha_operacion", "fecha", "date"}, Required: true},
	{Name: ColAccountingDate, Aliases: []string{"accounting_date", "fecha_contable"}},
	{Name: ColAmount, Aliases: []string{"amount", "monto", "importe"}},
	{Name: ColDebit, Aliases: []string{"debit", "cargo", "cargos"}},
	{Name: ColCredit, Aliases: []string{"credit", "abono", "abonos"}},
	{Name: ColCurrency, Aliases: []string{"currency", "moneda"}},
	{Name: ColDescription, Aliases: []string{"description", "descripcion", "glosa", "detalle"}, Required: true},
	{Name: ColReference, Aliases: []string{"reference", "referencia", "ref", "documento", "n_documento"}},
	{Name: ColAccount, Aliases: []string{"account", "cuenta", "nro_cuenta"}},
	{Name: ColBank, Aliases: []string{"bank", "banco"}},
	{Name: ColBlocks, Aliases: []string{"blocks_auto_reconcile", "bloquea_autoconcilia", "bloqueado"}},
	{Name: ColBlockReason, Aliases: []string{"block_reason", "motivo_bloqueo"}},
}

// ExpectedColumns is the vocabulary of the client's expected-movements file
var ExpectedColumns = ColumnSet{
	{Name: ColID, Aliases: []string{"id", "id_esperado", "expected_id"}, Required: true},
	{Name: ColDate, Aliases: []string{"date", "fecha", "fecha_esperada"}, Required: true},
	{Name: ColAmount, Aliases: []string{"amount", "monto", "importe"}, Required: true},
	{Name: ColCurrency, Aliases: []string{"currency", "moneda"}},
	{Name: ColDescription, Aliases: []string{"description", "descripcion", "glosa", "detalle"}, Required: true},
	{Name: ColReference, Aliases: []string{"reference", "referencia", "ref", "documento", "n_documento"}},
	{Name: ColCounterparty, Aliases: []string{"counterparty", "tercero", "contraparte", "rut"}},
}

// NormalizeHeader lowercases a header, strips accents and turns separators into '_'
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n", "°", "",
		"º", "", ".", "", " ", "_", "-", "_",
	).Replace(h)
	return strings.Trim(h, "_")
}

// Resolve maps canonical names to header positions. The first header
// matching a column wins. Missing required columns are returned sorted.
func (cs ColumnSet) Resolve(headers []string) (map[string]int, []string) {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, seen := positions[NormalizeHeader(h)]; !seen {
			positions[NormalizeHeader(h)] = i
		}
	}

	resolved := make(map[string]int)
	var missing []string
	for _, col := range cs {
		found := false
		for _, alias := range col.Aliases {
			if i, ok := positions[alias]; ok {
				resolved[col.Name] = i
				found = true
				break
			}
		}
		if !found && col.Required {
			missing = append(missing, col.Name)
		}
	}
	sort.Strings(missing)
	return resolved, missing
}

// Names lists the canonical names in declaration order
func (cs ColumnSet) Names() []string {
	names := make([]string, len(cs))
	for i, col := range cs {
		names[i] = col.Name
	}
	return names
}

// Positional maps canonical names to their declaration order, for headerless files
func (cs ColumnSet) Positional() map[string]int {
	positions := make(map[string]int, len(cs))
	for i, col := range cs {
		positions[col.Name] = i
	}
	return positions
}
