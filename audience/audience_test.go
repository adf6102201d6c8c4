package audience

import "testing"

func TestSchema_String(t *testing.T) {
	tests := map[Schema]string{
		EmailSHA256:        "EMAIL_SHA256",
		PhoneSHA256:        "PHONE_SHA256",
		MobileAdvertiserID: "MOBILE_ADVERTISER_ID",
		Schema(99):         "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String of %d should be %q, but %q", int(s), want, got)
		}
	}
}

func TestSchema_hashed(t *testing.T) {
	if !EmailSHA256.hashed() || !PhoneSHA256.hashed() {
		t.Error("email and phone schemas should be hashed")
	}
	if MobileAdvertiserID.hashed() {
		t.Error("advertiser ids should pass through unhashed")
	}
}

func TestHashValues(t *testing.T) {
	got := hashValues([]string{"  Alice@Example.COM  ", "09012345678"})

	want := []string{
		"ff8d9819fc0e12bf0d24892e45987e249a28dce836a85cad60e28eaaa8c6d976",
		"9876ccefa1e426aad25916a9cec49e9598bffcd5434d356c7d0c3cd3f0142baa",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hash %d should be %q, but %q", i, want[i], got[i])
		}
	}
}

func TestChunks(t *testing.T) {
	values := make([]string, 26000)

	var sizes []int
	for _, c := range chunks(values, 12000) {
		sizes = append(sizes, len(c))
	}

	want := []int{12000, 12000, 2000}
	if len(sizes) != len(want) {
		t.Fatalf("26000 values should make %d chunks, but %d", len(want), len(sizes))
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d should hold %d values, but %d", i, want[i], sizes[i])
		}
	}
}

func TestChunks_boundaries(t *testing.T) {
	if got := chunks(make([]string, 1000), 1000); len(got) != 1 {
		t.Errorf("an exact fit should make one chunk, but %d", len(got))
	}
	if got := chunks(make([]string, 1001), 1000); len(got) != 2 || len(got[1]) != 1 {
		t.Errorf("one value over should spill into a second chunk, but %v", got)
	}
	if got := chunks(nil, 1000); got != nil {
		t.Errorf("no values should make no chunks, but %v", got)
	}
}
