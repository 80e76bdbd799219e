// Package checklist reduces card-scheme test matrices into pass/fail summaries.
//
// The requestor confirmation and QA validation stages both submit a Submission
// and both must be scored by Aggregate.
package checklist

// Scheme is a card scheme covered by terminal testing.
type Scheme string

const (
	SchemeVisa       Scheme = "visa"
	SchemeMastercard Scheme = "mastercard"
	SchemeUnionPay   Scheme = "unionpay"
	SchemeAmex       Scheme = "amex"
	SchemeJCB        Scheme = "jcb"
	SchemeDiscover   Scheme = "discover"
)

// Schemes lists every scheme a submission may carry.
var Schemes = []Scheme{SchemeVisa, SchemeMastercard, SchemeUnionPay, SchemeAmex, SchemeJCB, SchemeDiscover}

// TransactionType is a row of the per-scheme matrix.
type TransactionType string

const (
	TxPurchase          TransactionType = "purchase"
	TxRefund            TransactionType = "refund"
	TxVoid              TransactionType = "void"
	TxPreAuthorization  TransactionType = "pre_authorization"
	TxPreAuthCompletion TransactionType = "pre_auth_completion"
	TxCashAdvance       TransactionType = "cash_advance"
	TxBalanceInquiry    TransactionType = "balance_inquiry"
	TxReversal          TransactionType = "reversal"
	TxTipAdjustment     TransactionType = "tip_adjustment"
	TxOfflineSale       TransactionType = "offline_sale"
	TxPurchaseCashback  TransactionType = "purchase_with_cashback"
	TxSettlement        TransactionType = "settlement"
)

// TransactionTypes is the fixed row order scored for every enabled scheme.
var TransactionTypes = []TransactionType{
	TxPurchase,
	TxRefund,
	TxVoid,
	TxPreAuthorization,
	TxPreAuthCompletion,
	TxCashAdvance,
	TxBalanceInquiry,
	TxReversal,
	TxTipAdjustment,
	TxOfflineSale,
	TxPurchaseCashback,
	TxSettlement,
}

// MethodsPerTransaction is the number of entry methods scored per row.
const MethodsPerTransaction = 4

// MethodResults holds the four entry-method cells of one transaction row.
type MethodResults struct {
	Insert   TriState `json:"insert"`
	Tap      TriState `json:"tap"`
	Manual   TriState `json:"manual"`
	Fallback TriState `json:"fallback"`
}

func (m MethodResults) cells() [MethodsPerTransaction]TriState {
	return [MethodsPerTransaction]TriState{m.Insert, m.Tap, m.Manual, m.Fallback}
}

// SchemeChecklist is the matrix for one card scheme.
type SchemeChecklist struct {
	Enabled      bool                              `json:"enabled"`
	Transactions map[TransactionType]MethodResults `json:"transactions"`
}

// Submission is a full checklist as entered by a tester.
type Submission struct {
	Schemes          map[Scheme]SchemeChecklist `json:"schemes"`
	AdditionalChecks map[string]TriState        `json:"additional_checks"`
}

// Summary is the aggregate of a submission.
type Summary struct {
	TotalTests int  `json:"total_tests"`
	Passed     int  `json:"passed"`
	Failed     int  `json:"failed"`
	NotTested  int  `json:"not_tested"`
	Validated  bool `json:"validated"`
}

func (s *Summary) add(v TriState) {
	s.TotalTests++
	switch v {
	case Pass:
		s.Passed++
	case Fail:
		s.Failed++
	default:
		s.NotTested++
	}
}

// Aggregate scores a submission. Disabled schemes contribute nothing; cells
// missing from an enabled scheme count as not tested; additional checks are
// always counted.
func Aggregate(sub Submission) Summary {
	var sum Summary
	for _, scheme := range Schemes {
		sc, ok := sub.Schemes[scheme]
		if !ok || !sc.Enabled {
			continue
		}
		for _, tx := range TransactionTypes {
			for _, cell := range sc.Transactions[tx].cells() {
				sum.add(cell)
			}
		}
	}
	for _, v := range sub.AdditionalChecks {
		sum.add(v)
	}
	sum.Validated = sum.Failed == 0
	return sum
}

// Known reports whether every scheme and transaction key in the submission is recognised.
func (s Submission) Known() (string, bool) {
	for scheme, sc := range s.Schemes {
		if !isScheme(scheme) {
			return string(scheme), false
		}
		for tx := range sc.Transactions {
			if !isTransactionType(tx) {
				return string(tx), false
			}
		}
	}
	return "", true
}

// Empty reports whether the submission carries no scored cells at all.
func (s Submission) Empty() bool {
	for _, sc := range s.Schemes {
		if sc.Enabled {
			return false
		}
	}
	return len(s.AdditionalChecks) == 0
}

func isScheme(s Scheme) bool {
	for _, known := range Schemes {
		if known == s {
			return true
		}
	}
	return false
}

func isTransactionType(t TransactionType) bool {
	for _, known := range TransactionTypes {
		if known == t {
			return true
		}
	}
	return false
}
