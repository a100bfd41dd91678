package recognition

import (
	"regexp"
	"sort"
	"strings"
)

// MergePolicy controls how a user-supplied options field combines with the
// built-in defaults.
type MergePolicy int

const (
	// MergeExtend unions user entries with the defaults; user entries win
	// on key clashes.
	MergeExtend MergePolicy = iota
	// MergeReplace discards the defaults for that field.
	MergeReplace
)

// Option field names accepted by OptionsFromMap and WithDefaults.
const (
	FieldStoreNames       = "storeNames"
	FieldTotalLabels      = "totalLabels"
	FieldIgnoreKeywords   = "ignoreKeywords"
	FieldStopKeywords     = "stopKeywords"
	FieldFoodKeywords     = "foodKeywords"
	FieldNonFoodKeywords  = "nonFoodKeywords"
	FieldDiscountKeywords = "discountKeywords"
	FieldDepositKeywords  = "depositKeywords"
)

// Options holds the recognition dictionaries and keyword sets. The two
// dictionaries map normalized aliases to canonical display strings; the
// six keyword sets are precompiled into alternation regexes at
// construction. An Options value is immutable after construction and safe
// to share across goroutines.
type Options struct {
	StoreNames       map[string]string
	TotalLabels      map[string]string
	IgnoreKeywords   []string
	StopKeywords     []string
	FoodKeywords     []string
	NonFoodKeywords  []string
	DiscountKeywords []string
	DepositKeywords  []string

	storeIndex map[string]string
	labelIndex map[string]string
	labelKeys  []string

	ignoreRe   *regexp.Regexp
	stopRe     *regexp.Regexp
	foodRe     *regexp.Regexp
	nonFoodRe  *regexp.Regexp
	discountRe *regexp.Regexp
	depositRe  *regexp.Regexp
}

// DefaultOptions returns the built-in dictionaries covering German,
// English and Japanese retail receipts.
func DefaultOptions() *Options {
	o := &Options{
		StoreNames: map[string]string{
			"aldi":         "Aldi",
			"aldi sued":    "Aldi Süd",
			"aldi nord":    "Aldi Nord",
			"lidl":         "Lidl",
			"rewe":         "REWE",
			"edeka":        "EDEKA",
			"netto":        "Netto",
			"penny":        "Penny",
			"kaufland":     "Kaufland",
			"dm":           "dm",
			"rossmann":     "Rossmann",
			"7-eleven":     "7-Eleven",
			"seven eleven": "7-Eleven",
			"family mart":  "FamilyMart",
			"familymart":   "FamilyMart",
			"lawson":       "Lawson",
			"ministop":     "Ministop",
		},
		TotalLabels: map[string]string{
			"summe":        "Summe",
			"gesamt":       "Gesamt",
			"gesamtbetrag": "Gesamtbetrag",
			"zu zahlen":    "Zu zahlen",
			"total":        "Total",
			"grand total":  "Grand Total",
			"amount due":   "Amount Due",
			"合計":           "合計",
			"総合計":          "総合計",
			"お買上げ計":        "お買上げ計",
		},
		IgnoreKeywords: []string{
			"mwst", "ust", "uid", "netto-umsatz", "tax", "vat",
			"tel", "telefon", "fax", "www", "http",
			"danke", "vielen dank", "thank you", "auf wiedersehen",
			"öffnungszeiten", "kundennummer", "beleg", "bon-nr",
			"領収書", "レシート",
		},
		StopKeywords: []string{
			"bar", "cash", "rückgeld", "change", "wechselgeld",
			"visa", "mastercard", "ec-karte", "girocard", "kartenzahlung",
			"kreditkarte", "お預り", "お釣り", "釣銭", "現金",
		},
		FoodKeywords: []string{
			"milch", "brot", "käse", "butter", "joghurt", "obst",
			"gemüse", "fleisch", "wurst", "fisch", "reis", "nudeln",
			"bread", "milk", "cheese", "弁当", "おにぎり", "パン", "牛乳",
		},
		NonFoodKeywords: []string{
			"zeitung", "zeitschrift", "batterie", "tüte", "tragetasche",
			"spülmittel", "waschmittel", "magazine", "battery",
			"電池", "雑誌",
		},
		DiscountKeywords: []string{
			"rabatt", "nachlass", "aktion", "coupon", "gutschein",
			"discount", "値引", "割引", "引き",
		},
		DepositKeywords: []string{
			"pfand", "leergut", "einweg", "mehrweg", "deposit",
		},
	}
	o.compile()
	return o
}

// NewOptions builds an Options value from explicit dictionaries. Nil maps
// and slices are allowed.
func NewOptions(storeNames, totalLabels map[string]string, ignore, stop, food, nonFood, discount, deposit []string) *Options {
	o := &Options{
		StoreNames:       storeNames,
		TotalLabels:      totalLabels,
		IgnoreKeywords:   ignore,
		StopKeywords:     stop,
		FoodKeywords:     food,
		NonFoodKeywords:  nonFood,
		DiscountKeywords: discount,
		DepositKeywords:  deposit,
	}
	if o.StoreNames == nil {
		o.StoreNames = map[string]string{}
	}
	if o.TotalLabels == nil {
		o.TotalLabels = map[string]string{}
	}
	o.compile()
	return o
}

// OptionsFromMap builds Options from a JSON-like map. Unknown keys are
// ignored; non-string entries are dropped silently.
func OptionsFromMap(m map[string]any) *Options {
	return NewOptions(
		stringMap(m[FieldStoreNames]),
		stringMap(m[FieldTotalLabels]),
		stringList(m[FieldIgnoreKeywords]),
		stringList(m[FieldStopKeywords]),
		stringList(m[FieldFoodKeywords]),
		stringList(m[FieldNonFoodKeywords]),
		stringList(m[FieldDiscountKeywords]),
		stringList(m[FieldDepositKeywords]),
	)
}

func stringMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		for k, s := range m {
			out[k] = s
		}
	case map[string]any:
		for k, raw := range m {
			if s, ok := raw.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func stringList(v any) []string {
	var out []string
	switch l := v.(type) {
	case []string:
		out = append(out, l...)
	case []any:
		for _, raw := range l {
			if s, ok := raw.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// ToMap renders the options back into the JSON-like schema accepted by
// OptionsFromMap.
func (o *Options) ToMap() map[string]any {
	return map[string]any{
		FieldStoreNames:       copyStringMap(o.StoreNames),
		FieldTotalLabels:      copyStringMap(o.TotalLabels),
		FieldIgnoreKeywords:   append([]string(nil), o.IgnoreKeywords...),
		FieldStopKeywords:     append([]string(nil), o.StopKeywords...),
		FieldFoodKeywords:     append([]string(nil), o.FoodKeywords...),
		FieldNonFoodKeywords:  append([]string(nil), o.NonFoodKeywords...),
		FieldDiscountKeywords: append([]string(nil), o.DiscountKeywords...),
		FieldDepositKeywords:  append([]string(nil), o.DepositKeywords...),
	}
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithDefaults merges o (the user options) into the built-in defaults.
// policies selects the merge mode per field name; fields without an entry
// use MergeExtend.
func (o *Options) WithDefaults(policies map[string]MergePolicy) *Options {
	def := DefaultOptions()
	policy := func(field string) MergePolicy {
		if p, ok := policies[field]; ok {
			return p
		}
		return MergeExtend
	}
	mergeMap := func(field string, def, user map[string]string) map[string]string {
		if policy(field) == MergeReplace {
			return copyStringMap(user)
		}
		out := copyStringMap(def)
		for k, v := range user {
			out[k] = v
		}
		return out
	}
	mergeList := func(field string, def, user []string) []string {
		if policy(field) == MergeReplace {
			return append([]string(nil), user...)
		}
		out := append([]string(nil), def...)
		have := make(map[string]bool, len(def))
		for _, s := range def {
			have[s] = true
		}
		for _, s := range user {
			if !have[s] {
				out = append(out, s)
				have[s] = true
			}
		}
		return out
	}
	return NewOptions(
		mergeMap(FieldStoreNames, def.StoreNames, o.StoreNames),
		mergeMap(FieldTotalLabels, def.TotalLabels, o.TotalLabels),
		mergeList(FieldIgnoreKeywords, def.IgnoreKeywords, o.IgnoreKeywords),
		mergeList(FieldStopKeywords, def.StopKeywords, o.StopKeywords),
		mergeList(FieldFoodKeywords, def.FoodKeywords, o.FoodKeywords),
		mergeList(FieldNonFoodKeywords, def.NonFoodKeywords, o.NonFoodKeywords),
		mergeList(FieldDiscountKeywords, def.DiscountKeywords, o.DiscountKeywords),
		mergeList(FieldDepositKeywords, def.DepositKeywords, o.DepositKeywords),
	)
}

// compile builds the alias indexes and keyword alternation regexes once;
// matching afterwards is allocation-free and shared-safe.
func (o *Options) compile() {
	o.storeIndex = make(map[string]string, len(o.StoreNames))
	for alias, canonical := range o.StoreNames {
		o.storeIndex[NormalizeKey(alias)] = canonical
	}
	o.labelIndex = make(map[string]string, len(o.TotalLabels))
	for alias, canonical := range o.TotalLabels {
		key := normalizeLabelKey(alias)
		o.labelIndex[key] = canonical
	}
	o.labelKeys = make([]string, 0, len(o.labelIndex))
	for key := range o.labelIndex {
		o.labelKeys = append(o.labelKeys, key)
	}
	sort.Strings(o.labelKeys)

	o.ignoreRe = compileKeywords(o.IgnoreKeywords)
	o.stopRe = compileKeywords(o.StopKeywords)
	o.foodRe = compileKeywords(o.FoodKeywords)
	o.nonFoodRe = compileKeywords(o.NonFoodKeywords)
	o.discountRe = compileKeywords(o.DiscountKeywords)
	o.depositRe = compileKeywords(o.DepositKeywords)
}

// normalizeLabelKey keeps CJK label aliases intact while normalizing Latin
// aliases to their alphanumeric key.
func normalizeLabelKey(alias string) string {
	if ContainsCJK(alias) {
		return strings.TrimSpace(FoldWidth(alias))
	}
	return NormalizeKey(alias)
}

func compileKeywords(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		return nil
	}
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		folded := strings.ToLower(FoldWidth(k))
		q := regexp.QuoteMeta(folded)
		// Latin keywords match on word boundaries so "bar" does not fire
		// inside "barilla"; CJK keywords have no word boundaries and match
		// as substrings.
		if !ContainsCJK(folded) {
			q = `\b` + q + `\b`
		}
		quoted[i] = q
	}
	return regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)`)
}

func matchKeyword(re *regexp.Regexp, text string) bool {
	if re == nil {
		return false
	}
	return re.MatchString(strings.ToLower(FoldWidth(text)))
}

// MatchesIgnore reports whether the line should be skipped entirely.
func (o *Options) MatchesIgnore(text string) bool { return matchKeyword(o.ignoreRe, text) }

// MatchesStop reports whether the line ends the item section of a receipt.
func (o *Options) MatchesStop(text string) bool { return matchKeyword(o.stopRe, text) }

// MatchesFood reports whether the text names a food item.
func (o *Options) MatchesFood(text string) bool { return matchKeyword(o.foodRe, text) }

// MatchesNonFood reports whether the text names a non-food item.
func (o *Options) MatchesNonFood(text string) bool { return matchKeyword(o.nonFoodRe, text) }

// MatchesDiscount reports whether the text marks a discount row.
func (o *Options) MatchesDiscount(text string) bool { return matchKeyword(o.discountRe, text) }

// MatchesDeposit reports whether the text marks a bottle-deposit row.
func (o *Options) MatchesDeposit(text string) bool { return matchKeyword(o.depositRe, text) }

// LookupStore resolves a raw line against the store dictionary.
func (o *Options) LookupStore(text string) (string, bool) {
	canonical, ok := o.storeIndex[NormalizeKey(text)]
	return canonical, ok
}

// LabelKeys returns the normalized total-label keys in stable order.
func (o *Options) LabelKeys() []string { return o.labelKeys }

// CanonicalLabel resolves a normalized label key to its canonical form.
func (o *Options) CanonicalLabel(key string) (string, bool) {
	canonical, ok := o.labelIndex[key]
	return canonical, ok
}
