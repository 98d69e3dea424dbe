package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{"1500", 150000, false},
		{"1500.5", 150050, false},
		{"1500.50", 150050, false},
		{"0.01", 1, false},
		{" 7.00 ", 700, false},
		{"-3.25", -325, false},
		{"", 0, true},
		{"12.345", 0, true},
		{"12.", 0, true},
		{".5", 0, true},
		{"1e3", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Amount Money  `json:"amount"`
		Target *Money `json:"target"`
	}{Amount: 100000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1000.00","target":null}`, string(data))

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.50","b":12.5}`), &in))
	assert.Equal(t, Money(1250), in.A)
	assert.Equal(t, Money(1250), in.B)

	err = json.Unmarshal([]byte(`{"a":"1.999"}`), &in)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestEmployeeNames(t *testing.T) {
	e := Employee{FirstName: "Ivan", LastName: "Petrov"}
	assert.Equal(t, "Petrov Ivan", e.DisplayName())
	assert.Equal(t, "petrov_ivan", e.Username())

	e.MiddleName = "Sergeevich"
	assert.Equal(t, "Petrov Ivan Sergeevich", e.DisplayName())
}

func TestWorkExperienceDays(t *testing.T) {
	hire := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, 16, WorkExperienceDays(hire, time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, WorkExperienceDays(hire, hire))
}

func TestCollectionDerivedValues(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsActive(now.Add(time.Minute), now))
	assert.False(t, IsActive(now, now))
	assert.Equal(t, 2, DaysLeft(now.Add(60*time.Hour), now))
	assert.Equal(t, 0, DaysLeft(now.Add(-time.Hour), now))

	target := Money(20000)
	assert.InDelta(t, 25.0, ProgressPercentage(5000, &target), 0.0001)
	assert.Zero(t, ProgressPercentage(5000, nil))

	c := Collection{TargetAmount: &target, CurrentAmount: 5000}
	require.NotNil(t, c.Remaining())
	assert.Equal(t, Money(15000), *c.Remaining())
	assert.Nil(t, (&Collection{}).Remaining())
}

func TestPrincipalPermissions(t *testing.T) {
	p := &Principal{UserID: 1, Permissions: []string{"desks:*", "collections:read"}}
	assert.True(t, p.HasPermission("desks:write"))
	assert.True(t, p.HasPermission("collections:read"))
	assert.False(t, p.HasPermission("collections:write"))
	assert.False(t, p.IsStaff())

	staff := &Principal{UserID: 2, Role: RoleStaff, Permissions: []string{"*"}}
	assert.True(t, staff.HasPermission("anything:at_all"))
	assert.True(t, staff.IsStaff())

	var anonymous *Principal
	assert.False(t, anonymous.Authenticated())
	assert.False(t, anonymous.HasPermission("collections:read"))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := Paginate(items, Page{Number: 2, Size: 2})
	assert.Equal(t, 5, page.Count)
	assert.Equal(t, []int{3, 4}, page.Results)

	page = Paginate(items, Page{Number: 9, Size: 2})
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)

	assert.Equal(t, Page{Number: 1, Size: DefaultPageSize}, Page{}.Normalize())
	assert.Equal(t, MaxPageSize, Page{Size: 1000}.Normalize().Size)
}
