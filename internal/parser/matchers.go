package parser

import (
	"regexp"
	"strings"

	"pesa/internal/core"
)

type groups map[string]string

type matcher struct {
	name  string
	re    *regexp.Regexp
	build func(g groups) (core.Details, bool)
}

func (m matcher) match(text string) (groups, bool) {
	sub := m.re.FindStringSubmatch(text)
	if sub == nil {
		return nil, false
	}
	g := make(groups, len(sub))
	for i, name := range m.re.SubexpNames() {
		if name != "" {
			g[name] = sub[i]
		}
	}
	return g, true
}

const (
	amount  = `(?:kshs?|kes)\.? ?(?P<amount>\d[\d,]*(?:\.\d+)?)`
	phone   = `(?:\+?254|0)\d{9}`
	onDate  = ` on \d{1,2}/\d{1,2}/\d{2,4}`
	numTag  = `(?: number| no\.?)?`
	account = `(?:account|acc\.?)` + numTag
)

func pattern(s string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + s)
}

// defaultMatchers is ordered by priority; the till fallback comes last so
// that every keyworded format gets the first chance.
var defaultMatchers = []matcher{
	{
		name: "send_money",
		re:   pattern(amount + ` sent to (?P<name>.+?) (?P<phone>` + phone + `)\.?` + onDate),
		build: func(g groups) (core.Details, bool) {
			if strings.Contains(strings.ToLower(g["name"]), " for account") {
				return nil, false
			}
			return core.SendMoney{CounterpartyName: cleanName(g["name"]), CounterpartyPhone: g["phone"]}, true
		},
	},
	{
		name: "receive_money",
		re:   pattern(`received ` + amount + ` from (?P<name>.+?)(?: (?P<phone>` + phone + `))?\.?` + onDate),
		build: func(g groups) (core.Details, bool) {
			return core.ReceiveMoney{CounterpartyName: cleanName(g["name"]), CounterpartyPhone: g["phone"]}, true
		},
	},
	{
		name: "paybill_named_account",
		re:   pattern(amount + ` (?:sent|paid) to (?P<name>.+?) for account (?P<account>\S+?)[.,]?` + onDate),
		build: func(g groups) (core.Details, bool) {
			name := cleanName(g["name"])
			if strings.Contains(strings.ToLower(name), "paybill") {
				return nil, false
			}
			return core.Paybill{AccountNumber: g["account"], MerchantName: name}, true
		},
	},
	{
		name: "paybill_named",
		re: pattern(amount + ` paid to (?P<name>.+?)[.,]? (?:via )?paybill` + numTag + ` (?P<paybill>\d+)[.,]? (?:for )?` +
			account + ` (?P<account>\S+?)[.,]?` + onDate),
		build: func(g groups) (core.Details, bool) {
			return core.Paybill{PaybillNumber: g["paybill"], AccountNumber: g["account"], MerchantName: cleanName(g["name"])}, true
		},
	},
	{
		name: "paybill",
		re: pattern(amount + ` paid to paybill` + numTag + ` (?P<paybill>\d+)[.,]? (?:for )?` +
			account + ` (?P<account>\S+?)[.,]?` + onDate),
		build: func(g groups) (core.Details, bool) {
			return core.Paybill{
				PaybillNumber: g["paybill"],
				AccountNumber: g["account"],
				MerchantName:  "PAYBILL " + g["paybill"],
			}, true
		},
	},
	{
		name: "till_leading",
		re:   pattern(amount + ` paid to (?:till|merchant|buy goods)` + numTag + ` (?P<till>\d+)(?:[ ,-]+(?P<name>.+?))?[.,]?` + onDate),
		build: func(g groups) (core.Details, bool) {
			return core.Till{TillNumber: g["till"], MerchantName: cleanName(g["name"])}, true
		},
	},
	{
		name: "till_trailing",
		re:   pattern(amount + ` paid to (?P<name>.+?)[.,]? \(?(?:till|merchant)` + numTag + ` (?P<till>\d+)\)?[.,]?` + onDate),
		build: func(g groups) (core.Details, bool) {
			return core.Till{TillNumber: g["till"], MerchantName: cleanName(g["name"])}, true
		},
	},
	{
		name: "airtime",
		re:   pattern(`(?:bought|purchased) ` + amount + ` (?:worth )?of airtime(?: for (?P<phone>` + phone + `))?`),
		build: func(g groups) (core.Details, bool) {
			return core.Airtime{RecipientPhone: g["phone"]}, true
		},
	},
	{
		name: "withdraw",
		re:   pattern(`withdrawn? ` + amount + ` from (?:(?P<agent>\d+) ?- ?)?(?P<name>.+?)\.?(?: new m-pesa| on \d|$)`),
		build: func(g groups) (core.Details, bool) {
			return core.Withdraw{AgentNumber: g["agent"], AgentName: cleanName(g["name"])}, true
		},
	},
	{
		name: "deposit_give",
		re:   pattern(`give ` + amount + ` cash to (?:(?P<agent>\d+) ?- ?)?(?P<name>.+?)\.?(?: new m-pesa| on \d|$)`),
		build: func(g groups) (core.Details, bool) {
			return core.Deposit{AgentNumber: g["agent"], AgentName: cleanName(g["name"])}, true
		},
	},
	{
		name: "deposit",
		re:   pattern(amount + ` (?:has been )?deposited (?:to|into) your (?:m-pesa )?account(?: (?:at|by) (?:(?P<agent>\d+) ?- ?)?(?P<name>.+?))?\.?(?: new m-pesa| on \d|$)`),
		build: func(g groups) (core.Details, bool) {
			return core.Deposit{AgentNumber: g["agent"], AgentName: cleanName(g["name"])}, true
		},
	},
	{
		// "paid to NAIVAS WESTLANDS." with no till keyword.
		name: "till_fallback",
		re:   pattern(amount + ` paid to (?P<name>.+?)[.,]?` + onDate),
		build: func(g groups) (core.Details, bool) {
			name := cleanName(g["name"])
			if name == "" || strings.Contains(strings.ToLower(name), "paybill") {
				return nil, false
			}
			return core.Till{MerchantName: name}, true
		},
	},
}

func cleanName(s string) string {
	return strings.TrimSpace(strings.Trim(s, " .,-"))
}
