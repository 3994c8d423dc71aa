package goals

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/cadence"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/limits"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/shopspring/decimal"
)

const (
	testAccountIDValue = "acct-1"
	testGoalIDValue    = "goal-1"
)

var testNow = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

type goalStoreFaults struct {
	updateErr error
	// beforeTx runs once, ahead of the next transaction.
	beforeTx func()
}

// stubGoalStore runs transactions against a copy and swaps it in on success.
type stubGoalStore struct {
	mu            sync.Mutex
	goals         map[string]Goal
	contributions []Contribution
	faults        *goalStoreFaults
}

func newStubGoalStore() *stubGoalStore {
	return &stubGoalStore{goals: map[string]Goal{}, faults: &goalStoreFaults{}}
}

func (store *stubGoalStore) clone() *stubGoalStore {
	store.mu.Lock()
	defer store.mu.Unlock()
	copied := &stubGoalStore{
		goals:         make(map[string]Goal, len(store.goals)),
		contributions: append([]Contribution(nil), store.contributions...),
		faults:        store.faults,
	}
	for goalID, goal := range store.goals {
		copied.goals[goalID] = goal
	}
	return copied
}

func (store *stubGoalStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	beforeTx := store.faults.beforeTx
	store.faults.beforeTx = nil
	store.mu.Unlock()
	if beforeTx != nil {
		beforeTx()
	}
	transaction := store.clone()
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.goals = transaction.goals
	store.contributions = transaction.contributions
	return nil
}

func (store *stubGoalStore) CreateGoal(ctx context.Context, goal Goal) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.goals[goal.ID] = goal
	return nil
}

func (store *stubGoalStore) GetGoal(ctx context.Context, goalID string) (Goal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	goal, ok := store.goals[goalID]
	if !ok {
		return Goal{}, fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	return goal, nil
}

func (store *stubGoalStore) UpdateGoal(ctx context.Context, goal Goal, expectedVersion int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.faults.updateErr; err != nil {
		store.faults.updateErr = nil
		return err
	}
	current, ok := store.goals[goal.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goal.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: goal %s", ledger.ErrConcurrentUpdate, goal.ID)
	}
	store.goals[goal.ID] = goal
	return nil
}

func (store *stubGoalStore) ListGoals(ctx context.Context, accountID string, offset int, limit int) ([]Goal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var matching []Goal
	for _, goal := range store.goals {
		if goal.AccountID == accountID {
			matching = append(matching, goal)
		}
	}
	sort.Slice(matching, func(left, right int) bool {
		return matching[left].CreatedAt.After(matching[right].CreatedAt)
	})
	return pageOf(matching, offset, limit), nil
}

func (store *stubGoalStore) CountGoals(ctx context.Context, accountID string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var count int64
	for _, goal := range store.goals {
		if goal.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (store *stubGoalStore) InsertContribution(ctx context.Context, contribution Contribution) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.contributions {
		if existing.GoalID == contribution.GoalID && existing.ReferenceID == contribution.ReferenceID {
			return fmt.Errorf("%w: %s", ErrDuplicateContribution, contribution.ReferenceID)
		}
	}
	store.contributions = append(store.contributions, contribution)
	return nil
}

func (store *stubGoalStore) ListContributions(ctx context.Context, goalID string, offset int, limit int) ([]Contribution, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var matching []Contribution
	for index := len(store.contributions) - 1; index >= 0; index-- {
		if store.contributions[index].GoalID == goalID {
			matching = append(matching, store.contributions[index])
		}
	}
	return pageOf(matching, offset, limit), nil
}

func (store *stubGoalStore) CountContributions(ctx context.Context, goalID string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var count int64
	for _, contribution := range store.contributions {
		if contribution.GoalID == goalID {
			count++
		}
	}
	return count, nil
}

func (store *stubGoalStore) ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]Goal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var due []Goal
	for _, goal := range store.goals {
		if goal.Status != GoalStatusActive || !goal.AutoSweepEnabled {
			continue
		}
		if goal.NextSweepAt != nil && goal.NextSweepAt.After(now) {
			continue
		}
		due = append(due, goal)
	}
	sort.Slice(due, func(left, right int) bool {
		return sweepTime(due[left]).Before(sweepTime(due[right]))
	})
	return pageOf(due, 0, limit), nil
}

func (store *stubGoalStore) mustGoal(test *testing.T, goalID string) Goal {
	test.Helper()
	goal, err := store.GetGoal(context.Background(), goalID)
	if err != nil {
		test.Fatalf("goal: %v", err)
	}
	return goal
}

func (store *stubGoalStore) contributionCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.contributions)
}

func (store *stubGoalStore) contributionTotal() money.Amount {
	store.mu.Lock()
	defer store.mu.Unlock()
	total := money.Zero
	for _, contribution := range store.contributions {
		total = total.Add(contribution.Amount)
	}
	return total
}

func sweepTime(goal Goal) time.Time {
	if goal.NextSweepAt == nil {
		return time.Time{}
	}
	return *goal.NextSweepAt
}

func pageOf[T any](items []T, offset int, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// fakeLedger replays known reference ids like the real ledger does.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]money.Amount
	statuses map[string]ledger.AccountStatus
	applied  map[string]ledger.TransactionLogEntry
	debits   []ledger.TransactionRequest
	applyErr error
}

func newFakeLedger(test *testing.T, balance string) *fakeLedger {
	test.Helper()
	return &fakeLedger{
		balances: map[string]money.Amount{testAccountIDValue: mustAmount(test, balance)},
		statuses: map[string]ledger.AccountStatus{testAccountIDValue: ledger.AccountStatusActive},
		applied:  map[string]ledger.TransactionLogEntry{},
	}
}

func (fake *fakeLedger) Apply(_ context.Context, request ledger.TransactionRequest) (ledger.TransactionOutcome, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.applyErr != nil {
		return ledger.TransactionOutcome{}, fake.applyErr
	}
	balance, ok := fake.balances[request.AccountID]
	if !ok {
		return ledger.TransactionOutcome{}, fmt.Errorf("%w: account %s", ledger.ErrNotFound, request.AccountID)
	}
	key := request.AccountID + ":" + request.ReferenceID
	if existing, ok := fake.applied[key]; ok {
		return ledger.TransactionOutcome{
			Account:  ledger.AccountSnapshot{AccountID: request.AccountID, Balance: balance},
			Entry:    existing,
			Replayed: true,
		}, nil
	}
	amount, err := money.FromDecimal(request.Amount)
	if err != nil {
		return ledger.TransactionOutcome{}, err
	}
	if request.Type == ledger.TransactionDebit {
		if amount > balance {
			return ledger.TransactionOutcome{}, fmt.Errorf("%w: balance %s", ledger.ErrInsufficientFunds, balance)
		}
		balance = balance.Sub(amount)
		fake.debits = append(fake.debits, request)
	} else {
		balance = balance.Add(amount)
	}
	entry := ledger.TransactionLogEntry{
		AccountID:        request.AccountID,
		ReferenceID:      request.ReferenceID,
		Type:             request.Type,
		Amount:           amount,
		ResultingBalance: balance,
	}
	fake.balances[request.AccountID] = balance
	fake.applied[key] = entry
	return ledger.TransactionOutcome{
		Account: ledger.AccountSnapshot{AccountID: request.AccountID, Balance: balance},
		Entry:   entry,
	}, nil
}

func (fake *fakeLedger) mustCredit(test *testing.T, referenceID string, amount string) {
	test.Helper()
	if _, err := fake.Apply(context.Background(), ledger.TransactionRequest{
		AccountID:   testAccountIDValue,
		ReferenceID: referenceID,
		Type:        ledger.TransactionCredit,
		Amount:      mustDecimal(test, amount),
	}); err != nil {
		test.Fatalf("credit: %v", err)
	}
}

func (fake *fakeLedger) balance() money.Amount {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.balances[testAccountIDValue]
}

func (fake *fakeLedger) GetBalance(_ context.Context, accountID string) (ledger.BalanceSnapshot, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	balance, ok := fake.balances[accountID]
	if !ok {
		return ledger.BalanceSnapshot{}, fmt.Errorf("%w: account %s", ledger.ErrNotFound, accountID)
	}
	return ledger.BalanceSnapshot{AccountID: accountID, Balance: balance, Status: fake.statuses[accountID]}, nil
}

func (fake *fakeLedger) debitCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return len(fake.debits)
}

func fixedClock() time.Time {
	return testNow
}

func mustNewService(test *testing.T, store Store, ledgerService Ledger, goalLimits limits.GoalLimits, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, ledgerService, goalLimits, fixedClock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAmount(test *testing.T, raw string) money.Amount {
	test.Helper()
	value, err := money.Parse(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal: %v", err)
	}
	return value
}

func decimalPointer(test *testing.T, raw string) *decimal.Decimal {
	test.Helper()
	value := mustDecimal(test, raw)
	return &value
}

func stringPointer(value string) *string {
	return &value
}

func boolPointer(value bool) *bool {
	return &value
}

func timePointer(value time.Time) *time.Time {
	return &value
}

// seedGoal stores an ACTIVE monthly auto-sweep goal that is already due.
func seedGoal(test *testing.T, store *stubGoalStore, target string, current string) Goal {
	test.Helper()
	goal := Goal{
		ID:               testGoalIDValue,
		AccountID:        testAccountIDValue,
		Name:             "Vacation",
		TargetAmount:     mustAmount(test, target),
		CurrentAmount:    mustAmount(test, current),
		Status:           GoalStatusActive,
		AutoSweepEnabled: true,
		AutoSweepCadence: cadence.Monthly,
		NextSweepAt:      timePointer(testNow.Add(-time.Hour)),
		CreatedAt:        testNow.Add(-48 * time.Hour),
		UpdatedAt:        testNow.Add(-48 * time.Hour),
	}
	if err := store.CreateGoal(context.Background(), goal); err != nil {
		test.Fatalf("seed goal: %v", err)
	}
	return goal
}
