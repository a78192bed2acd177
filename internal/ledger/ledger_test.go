package ledger_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talkincode/medsbot/config"
	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/internal/testutil"
	"github.com/talkincode/medsbot/pkg/common"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newLedger(t *testing.T) (*ledger.Ledger, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	return ledger.New(db, ledger.WithClock(func() time.Time { return fixedNow })), db
}

func reload(t *testing.T, db *gorm.DB, id int64) domain.Medicine {
	t.Helper()
	var m domain.Medicine
	if err := db.First(&m, id).Error; err != nil {
		t.Fatalf("reload medicine %d: %v", id, err)
	}
	return m
}

func TestDaysRemaining(t *testing.T) {
	tests := []struct {
		stock int
		dose  float64
		want  int
	}{
		{30, 2, 15},
		{0, 2, 0},
		{10, 0, 0},
		{7, 0.5, 14},
		{10, 3, 3},
		{1, 1.5, 0},
		{100, 0.1, 1000},
	}
	for _, tt := range tests {
		got := ledger.DaysRemaining(domain.Medicine{CurrentStock: tt.stock, DailyDose: tt.dose})
		if got != tt.want {
			t.Fatalf("DaysRemaining(stock=%d, dose=%v) = %d, want %d", tt.stock, tt.dose, got, tt.want)
		}
	}
}

func TestDaysRemainingMatchesFloor(t *testing.T) {
	for _, dose := range []float64{0.25, 0.5, 1, 1.5, 2, 3, 4} {
		for stock := 0; stock <= 120; stock++ {
			want := int(math.Floor(float64(stock) / dose))
			got := ledger.DaysRemaining(domain.Medicine{CurrentStock: stock, DailyDose: dose})
			if got != want {
				t.Fatalf("stock=%d dose=%v: got %d, want %d", stock, dose, got, want)
			}
		}
	}
}

func TestDecrementScenario(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Aspirin", 2, 30, 14)

	if got := ledger.DaysRemaining(m); got != 15 {
		t.Fatalf("days remaining = %d, want 15", got)
	}
	updated, err := l.DecrementDaily(ctx)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}
	m = reload(t, db, m.ID)
	if m.CurrentStock != 28 {
		t.Fatalf("stock = %d, want 28", m.CurrentStock)
	}
	if got := ledger.DaysRemaining(m); got != 14 {
		t.Fatalf("days remaining = %d, want 14", got)
	}
}

func TestDecrementDailyRepeated(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	two := testutil.SeedMedicine(t, db, "Two", 2, 9, 14)
	three := testutil.SeedMedicine(t, db, "Three", 3, 100, 14)
	idle := testutil.SeedMedicine(t, db, "Idle", 0, 12, 14)

	for day := 1; day <= 10; day++ {
		if _, err := l.DecrementDaily(ctx); err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if got, want := reload(t, db, two.ID).CurrentStock, max(0, 9-2*day); got != want {
			t.Fatalf("day %d: stock(Two) = %d, want %d", day, got, want)
		}
		if got, want := reload(t, db, three.ID).CurrentStock, 100-3*day; got != want {
			t.Fatalf("day %d: stock(Three) = %d, want %d", day, got, want)
		}
	}
	if got := reload(t, db, idle.ID).CurrentStock; got != 12 {
		t.Fatalf("zero-dose stock changed to %d", got)
	}
}

func TestDecrementedStockTruncates(t *testing.T) {
	tests := []struct {
		stock int
		dose  float64
		want  int
	}{
		{10, 1.5, 8},
		{10, 0.5, 9},
		{1, 2, 0},
		{0, 1, 0},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := ledger.DecrementedStock(tt.stock, tt.dose); got != tt.want {
			t.Fatalf("DecrementedStock(%d, %v) = %d, want %d", tt.stock, tt.dose, got, tt.want)
		}
	}
}

// A fractional dose removes whole units: stock-dose is truncated each day,
// so 1.5 per day takes two units, not one and a half.
func TestDecrementDailyFractionalDose(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Tiapride", 1.5, 10, 14)

	for _, want := range []int{8, 6, 4, 2, 0, 0} {
		if _, err := l.DecrementDaily(ctx); err != nil {
			t.Fatalf("decrement: %v", err)
		}
		if got := reload(t, db, m.ID).CurrentStock; got != want {
			t.Fatalf("stock = %d, want %d", got, want)
		}
	}
}

func TestDecrementForDayRunsOncePerDay(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Aspirin", 2, 10, 14)
	day := common.DateOf(fixedNow)

	updated, ran, err := l.DecrementForDay(ctx, day)
	if err != nil || !ran || updated != 1 {
		t.Fatalf("first run: updated %d ran %v err %v", updated, ran, err)
	}
	updated, ran, err = l.DecrementForDay(ctx, day.Add(6*time.Hour))
	if err != nil || ran || updated != 0 {
		t.Fatalf("same day: updated %d ran %v err %v", updated, ran, err)
	}
	if got := reload(t, db, m.ID).CurrentStock; got != 8 {
		t.Fatalf("stock = %d, want 8", got)
	}

	if _, ran, err := l.DecrementForDay(ctx, common.AddDays(day, 1)); err != nil || !ran {
		t.Fatalf("next day: ran %v err %v", ran, err)
	}
	if got := reload(t, db, m.ID).CurrentStock; got != 6 {
		t.Fatalf("stock = %d, want 6", got)
	}

	var runs []domain.DecrementRun
	if err := db.Order("day").Find(&runs).Error; err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(runs) != 2 || runs[0].Day != "2025-03-10" || runs[1].Day != "2025-03-11" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestZeroNotifyThresholdIsStored(t *testing.T) {
	_, db := newLedger(t)
	m := testutil.SeedMedicine(t, db, "Melatonin", 1, 3, 0)
	if got := reload(t, db, m.ID).NotifyBeforeDays; got != 0 {
		t.Fatalf("notify before days = %d, want 0", got)
	}
}

func TestDecrementDailySkipsUnchangedRows(t *testing.T) {
	l, db := newLedger(t)
	testutil.SeedMedicine(t, db, "Empty", 1, 0, 14)
	testutil.SeedMedicine(t, db, "Full", 1, 3, 14)

	updated, err := l.DecrementDaily(context.Background())
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}
}

func TestApplyAdjustmentClampsAtZero(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Ibuprofen", 1, 5, 14)

	for _, tt := range []struct {
		delta int
		want  int
	}{
		{-100, 0},
		{7, 7},
		{-3, 4},
		{-ledger.MaxQuantity, 0},
	} {
		got, err := l.ApplyAdjustment(ctx, m.ID, tt.delta)
		if err != nil {
			t.Fatalf("adjust %d: %v", tt.delta, err)
		}
		if got != tt.want {
			t.Fatalf("adjust %d: stock = %d, want %d", tt.delta, got, tt.want)
		}
		if stored := reload(t, db, m.ID).CurrentStock; stored != got {
			t.Fatalf("stored stock = %d, returned %d", stored, got)
		}
	}

	purchases, err := l.ListPurchases(ctx, m.ID, 0)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(purchases) != 4 {
		t.Fatalf("purchases = %d, want 4", len(purchases))
	}
	if purchases[0].Quantity != -ledger.MaxQuantity || purchases[3].Quantity != -100 {
		t.Fatalf("purchases not newest first: %+v", purchases)
	}
}

func TestApplyAdjustmentRejectsOversizedQuantity(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Ibuprofen", 1, 10, 14)

	for _, delta := range []int{math.MaxInt64, math.MinInt64, ledger.MaxQuantity + 1, -ledger.MaxQuantity - 1} {
		if _, err := l.ApplyAdjustment(ctx, m.ID, delta); !errors.Is(err, ledger.ErrValidation) {
			t.Fatalf("adjust %d: err = %v, want ErrValidation", delta, err)
		}
	}
	if got := reload(t, db, m.ID).CurrentStock; got != 10 {
		t.Fatalf("stock = %d, want 10", got)
	}

	// a purchase that would push the stock past the column range is refused
	if err := db.Model(&domain.Medicine{}).Where("id = ?", m.ID).
		Update("current_stock", ledger.MaxStock-5).Error; err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if _, err := l.ApplyAdjustment(ctx, m.ID, 6); !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("overflow: err = %v, want ErrValidation", err)
	}
	got, err := l.ApplyAdjustment(ctx, m.ID, 5)
	if err != nil || got != ledger.MaxStock {
		t.Fatalf("fill to max: got %d, %v; want %d", got, err, ledger.MaxStock)
	}

	var count int64
	db.Model(&domain.Purchase{}).Count(&count)
	if count != 1 {
		t.Fatalf("purchases = %d, want 1", count)
	}
}

func TestApplyAdjustmentErrors(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Ibuprofen", 1, 5, 14)

	_, err := l.ApplyAdjustment(ctx, m.ID+100, 3)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("unknown id: err = %v, want ErrNotFound", err)
	}
	var nf *ledger.NotFoundError
	if !errors.As(err, &nf) || nf.ID != m.ID+100 {
		t.Fatalf("unknown id: err = %#v", err)
	}

	if _, err := l.ApplyAdjustment(ctx, m.ID, 0); !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("zero delta: err = %v, want ErrValidation", err)
	}

	var count int64
	db.Model(&domain.Purchase{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed adjustments left %d purchases", count)
	}
}

func TestPrescriptionRoundTrip(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	m := testutil.SeedMedicine(t, db, "Metformin", 1, 60, 14)

	if _, ok, err := l.GetPrescriptionExpiry(ctx, m.ID); err != nil || ok {
		t.Fatalf("unset prescription: ok=%v err=%v", ok, err)
	}

	want := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	if err := l.SetPrescriptionExpiry(ctx, m.ID, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := l.GetPrescriptionExpiry(ctx, m.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got.Equal(want) {
		t.Fatalf("expiry = %v, want %v", got, want)
	}

	next := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if err := l.SetPrescriptionExpiry(ctx, m.ID, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ = l.GetPrescriptionExpiry(ctx, m.ID)
	if common.FormatDate(got) != "2026-01-15" {
		t.Fatalf("updated expiry = %s", common.FormatDate(got))
	}
	var count int64
	db.Model(&domain.Prescription{}).Count(&count)
	if count != 1 {
		t.Fatalf("prescription rows = %d, want 1", count)
	}

	if err := l.SetPrescriptionExpiry(ctx, m.ID+1, want); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("unknown medicine: err = %v", err)
	}
}

func TestExpiringWithinHorizon(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	today := common.DateOf(fixedNow)

	alpha := testutil.SeedMedicine(t, db, "Alpha", 1, 40, 14)
	beta := testutil.SeedMedicine(t, db, "Beta", 2, 10, 14)
	gamma := testutil.SeedMedicine(t, db, "Gamma", 0, 0, 14)
	delta := testutil.SeedMedicine(t, db, "Delta", 1, 10, 14)
	far := testutil.SeedMedicine(t, db, "Far", 1, 90, 14)

	mustSet := func(id int64, d time.Time) {
		if err := l.SetPrescriptionExpiry(ctx, id, d); err != nil {
			t.Fatalf("set prescription: %v", err)
		}
	}
	mustSet(alpha.ID, today.AddDate(0, 0, 10))
	mustSet(gamma.ID, today.AddDate(0, 0, -3))
	mustSet(delta.ID, today.AddDate(0, 0, 10))
	mustSet(far.ID, today.AddDate(0, 0, 31))

	items, err := l.ExpiringWithinHorizon(ctx, 30)
	if err != nil {
		t.Fatalf("horizon: %v", err)
	}
	want := []struct {
		id   int64
		kind ledger.ItemKind
		days int
	}{
		{gamma.ID, ledger.KindPrescription, -3},
		{beta.ID, ledger.KindStock, 5},
		{alpha.ID, ledger.KindPrescription, 10},
		{delta.ID, ledger.KindStock, 10},
		{delta.ID, ledger.KindPrescription, 10},
	}
	if len(items) != len(want) {
		t.Fatalf("items = %+v, want %d entries", items, len(want))
	}
	for i, w := range want {
		it := items[i]
		if it.MedicineID != w.id || it.Kind != w.kind || it.DaysLeft != w.days {
			t.Fatalf("item %d = %+v, want %+v", i, it, w)
		}
		if got := common.DaysBetween(today, it.Date); got != w.days {
			t.Fatalf("item %d date is %d days out, want %d", i, got, w.days)
		}
	}
}

func TestStatusSummaryOrder(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	testutil.SeedMedicine(t, db, "Plenty", 1, 50, 14)
	low := testutil.SeedMedicine(t, db, "Low", 1, 3, 14)
	testutil.SeedMedicine(t, db, "Middle", 2, 40, 14)
	if err := l.SetPrescriptionExpiry(ctx, low.ID, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("set prescription: %v", err)
	}

	lines, err := l.StatusSummary(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0].Medicine.Name != "Low" || lines[1].Medicine.Name != "Middle" || lines[2].Medicine.Name != "Plenty" {
		t.Fatalf("unexpected order: %s, %s, %s", lines[0].Medicine.Name, lines[1].Medicine.Name, lines[2].Medicine.Name)
	}
	if lines[0].Expiry == nil || common.FormatDate(*lines[0].Expiry) != "2025-06-01" {
		t.Fatalf("expiry not attached: %+v", lines[0])
	}
	if lines[1].Expiry != nil {
		t.Fatalf("unexpected expiry on %s", lines[1].Medicine.Name)
	}
}

func TestSyncMedicines(t *testing.T) {
	db := testutil.OpenDB(t)
	l := ledger.New(db, ledger.WithDefaultNotifyBeforeDays(10))
	ctx := context.Background()

	if err := l.SyncMedicines(ctx, []config.MedicineConfig{
		{Name: "Aspirin", DailyDose: 1},
		{Name: "Vitamin D", AltName: "Cholecalciferol", DailyDose: 0.5},
	}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	meds, err := l.ListMedicines(ctx)
	if err != nil || len(meds) != 2 {
		t.Fatalf("medicines = %d, err = %v", len(meds), err)
	}
	aspirin := meds[0]
	if aspirin.Name != "Aspirin" || aspirin.NotifyBeforeDays != 10 || aspirin.CurrentStock != 0 {
		t.Fatalf("unexpected seeded medicine: %+v", aspirin)
	}
	if _, err := l.ApplyAdjustment(ctx, aspirin.ID, 20); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	if err := l.SyncMedicines(ctx, []config.MedicineConfig{
		{Name: "Aspirin", AltName: "ASA", DailyDose: 2},
		{Name: "Omega 3", DailyDose: 1},
	}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	meds, _ = l.ListMedicines(ctx)
	if len(meds) != 3 {
		t.Fatalf("medicines = %d, want 3", len(meds))
	}
	aspirin = reload(t, db, aspirin.ID)
	if aspirin.DailyDose != 2 || aspirin.DisplayName() != "Aspirin (ASA)" {
		t.Fatalf("sync did not update dose/alt name: %+v", aspirin)
	}
	if aspirin.CurrentStock != 20 {
		t.Fatalf("sync changed stock to %d", aspirin.CurrentStock)
	}
}

func TestGetOrCreateUser(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	first, err := l.GetOrCreateUser(ctx, "4915112345678", "Anna")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := l.GetOrCreateUser(ctx, "4915112345678", "Renamed")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.ID != first.ID || again.FirstName != "Anna" {
		t.Fatalf("user not reused: first=%+v again=%+v", first, again)
	}
	if _, err := l.GetOrCreateUser(ctx, "4917000000000", "Ben"); err != nil {
		t.Fatalf("create second: %v", err)
	}
	ids, err := l.RecipientIDs(ctx)
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("recipients = %v, want 2", ids)
	}
	if _, err := l.GetOrCreateUser(ctx, " ", "x"); !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("empty chat id: err = %v", err)
	}
}
