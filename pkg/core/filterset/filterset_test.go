package filterset

import "testing"

func TestValidate(t *testing.T) {
	valid := FilterSet{DataDomain: DomainMortgage, Geography: []string{"06037"}, Years: []int{2022}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid filter set, got %v", err)
	}

	tests := []struct {
		name string
		fs   FilterSet
	}{
		{"missing domain", FilterSet{Geography: []string{"06037"}, Years: []int{2022}}},
		{"empty geography", FilterSet{DataDomain: DomainMortgage, Years: []int{2022}}},
		{"empty years", FilterSet{DataDomain: DomainMortgage, Geography: []string{"06037"}}},
		{"year outside vintage range", FilterSet{DataDomain: DomainMortgage, Geography: []string{"06037"}, Years: []int{1999}}},
		{"unknown domain", FilterSet{DataDomain: "bogus", Geography: []string{"06037"}, Years: []int{2022}}},
		{
			"invalid peer band",
			FilterSet{
				DataDomain: DomainMortgage, Geography: []string{"06037"}, Years: []int{2022},
				PeerVolumeBand: &PeerVolumeBand{LowMultiplier: 2, HighMultiplier: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fs.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestCanonicalizeSortsSetsWithoutMutatingInput(t *testing.T) {
	original := FilterSet{
		DataDomain: DomainMortgage,
		Geography:  []string{"06073", "06037", "06059"},
		Years:      []int{2022, 2020, 2021},
	}
	canon := original.Canonicalize()

	if canon.Geography[0] != "06037" || canon.Geography[2] != "06073" {
		t.Errorf("geography not sorted: %v", canon.Geography)
	}
	if canon.Years[0] != 2020 || canon.Years[2] != 2022 {
		t.Errorf("years not sorted: %v", canon.Years)
	}
	if original.Geography[0] != "06073" {
		t.Error("Canonicalize must not mutate the receiver's slices")
	}
}

func TestHashIsStableAndOrderIndependent(t *testing.T) {
	a := FilterSet{DataDomain: DomainMortgage, Geography: []string{"06037", "06059"}, Years: []int{2021, 2020}}
	b := FilterSet{DataDomain: DomainMortgage, Geography: []string{"06059", "06037"}, Years: []int{2020, 2021}}

	hashA, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	hashB, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if hashA != hashB {
		t.Errorf("hashes of equivalent filter sets differ: %s vs %s", hashA, hashB)
	}

	c := FilterSet{DataDomain: DomainMortgage, Geography: []string{"06037"}, Years: []int{2021}}
	hashC, err := c.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if hashA == hashC {
		t.Error("distinct filter sets must not collide")
	}
}

func TestDefaultExcludesReverseMortgage(t *testing.T) {
	if !Default().ExcludeReverseMortgage {
		t.Error("Default() must exclude reverse mortgages per the platform-wide default")
	}
}
