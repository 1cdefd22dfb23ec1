package game

import (
	"testing"
	"time"
)

func accountWithCollateral(t *testing.T, balance, paid string) *Account {
	t.Helper()
	acct := newAccount("payer", DefaultRules(), time.Unix(0, 0))
	acct.Balance = dec(balance)
	if paid != "0" {
		spec, err := generatorByKind("intern")
		if err != nil {
			t.Fatalf("catalog: %v", err)
		}
		acct.generators.add(spec, dec(paid))
		acct.ProductionRate = acct.generators.productionRate()
	}
	return acct
}

func TestForcePaymentDebtAllowed(t *testing.T) {
	rules := DefaultRules()
	// net worth = 100 + 0.9*100 = 190
	acct := accountWithCollateral(t, "100", "100")

	pay := forcePayment(rules, acct, dec("150"))
	if pay.Bankrupt {
		t.Fatalf("payment within net worth must not bankrupt")
	}
	if !pay.Paid.Equal(dec("150")) {
		t.Fatalf("paid=%s want 150", pay.Paid)
	}
	if !acct.Balance.Equal(dec("-50")) {
		t.Fatalf("balance=%s want -50 (debt)", acct.Balance)
	}
	if acct.generators.count("intern") != 1 {
		t.Fatalf("debt must not touch generators")
	}
}

func TestForcePaymentBankruptcy(t *testing.T) {
	rules := DefaultRules()
	acct := accountWithCollateral(t, "100", "100")

	pay := forcePayment(rules, acct, dec("250"))
	if !pay.Bankrupt || !acct.Bankrupt {
		t.Fatalf("expected bankruptcy")
	}
	if !pay.Paid.Equal(dec("190")) {
		t.Fatalf("payee must receive only net worth, got %s", pay.Paid)
	}
	if !acct.Balance.IsZero() {
		t.Fatalf("balance=%s want exactly 0", acct.Balance)
	}
	if !acct.ProductionRate.IsZero() {
		t.Fatalf("production rate must reset, got %s", acct.ProductionRate)
	}
	for _, spec := range generatorCatalog {
		if n := acct.generators.count(spec.Kind); n != 0 {
			t.Fatalf("%s count=%d after bankruptcy", spec.Kind, n)
		}
	}
}

func TestForcePaymentNetWorthNeverNegative(t *testing.T) {
	rules := DefaultRules()
	amounts := []string{"0", "1", "189", "190", "191", "10000"}
	for _, a := range amounts {
		acct := accountWithCollateral(t, "100", "100")
		pay := forcePayment(rules, acct, dec(a))
		if nw := acct.collateralNetWorth(rules.CollateralRatio); nw.Sign() < 0 {
			t.Fatalf("amount=%s left net worth %s", a, nw)
		}
		if pay.Paid.GreaterThan(dec(a)) {
			t.Fatalf("amount=%s paid %s more than requested", a, pay.Paid)
		}
	}
}

func TestForcePaymentNegativeNetWorthPaysNothing(t *testing.T) {
	acct := accountWithCollateral(t, "-40", "0")
	pay := forcePayment(DefaultRules(), acct, dec("10"))
	if !pay.Bankrupt || !pay.Paid.IsZero() {
		t.Fatalf("got paid=%s bankrupt=%v", pay.Paid, pay.Bankrupt)
	}
}

func TestSettleLiquidationForfeitsExactlyStake(t *testing.T) {
	prices := []string{"800", "500", "1", "-300"}
	for _, price := range prices {
		owner := newAccount("owner", DefaultRules(), time.Unix(0, 0))
		target := newAccount("target", DefaultRules(), time.Unix(0, 0))
		target.Balance = dec(price)
		p := &Position{Owner: "owner", Target: "target", Direction: Long, Stake: dec("100"), Leverage: 5, EntryPrice: dec("1000"), LiquidationPrice: dec("800"), State: PositionOpen}

		st := settleLiquidation(p, owner, target)
		if !owner.Balance.Equal(dec("400")) {
			t.Fatalf("price=%s owner=%s want 400", price, owner.Balance)
		}
		if !target.Balance.Equal(dec(price).Add(dec("100"))) {
			t.Fatalf("price=%s target=%s", price, target.Balance)
		}
		if !st.Transfer.Equal(dec("-100")) || p.State != PositionLiquidated {
			t.Fatalf("price=%s transfer=%s state=%s", price, st.Transfer, p.State)
		}
	}
}

func TestSettleCloseLossCapped(t *testing.T) {
	tests := []struct {
		price     string
		wantOwner string
	}{
		{price: "900", wantOwner: "480"}, // pnl -20
		{price: "600", wantOwner: "420"}, // pnl -80
		{price: "400", wantOwner: "400"}, // pnl -120, capped at stake
		{price: "100", wantOwner: "400"},
	}
	for _, tc := range tests {
		owner := newAccount("owner", DefaultRules(), time.Unix(0, 0))
		target := newAccount("target", DefaultRules(), time.Unix(0, 0))
		target.Balance = dec(tc.price)
		p := &Position{Owner: "owner", Target: "target", Direction: Long, Stake: dec("100"), Leverage: 2, EntryPrice: dec("1000"), LiquidationPrice: dec("500"), State: PositionOpen}
		before := owner.Balance

		settleClose(DefaultRules(), p, owner, target)
		if !owner.Balance.Equal(dec(tc.wantOwner)) {
			t.Fatalf("price=%s owner=%s want %s", tc.price, owner.Balance, tc.wantOwner)
		}
		if owner.Balance.LessThan(before.Sub(p.Stake)) {
			t.Fatalf("price=%s loss exceeded stake", tc.price)
		}
		if p.State != PositionClosed {
			t.Fatalf("state=%s", p.State)
		}
	}
}
