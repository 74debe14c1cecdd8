package tickers

// Profile tracks a ticker's full company profile. Its output subsumes the
// symbols record, so symbols is skipped while profile is collected.
type Profile struct {
	Base
}

// NewProfile creates the profile record type
func NewProfile() *Profile {
	return &Profile{}
}

func (p *Profile) Name() string {
	return "profile"
}

func (p *Profile) Endpoint() string {
	return "https://backend.otcmarkets.com/otcapi/company/profile/full/%s?symbol=%s"
}

func (p *Profile) NestedKeys() map[string]int {
	return map[string]int{
		"officers":             2,
		"premierDirectorList":  2,
		"standardDirectorList": 2,
	}
}

// FilterKeys drops bookkeeping fields the upstream touches on every fetch
func (p *Profile) FilterKeys() []string {
	return []string{"latestFilingDate", "profileVerifiedAsOfDate", "numberOfRecordShareholdersDate"}
}

func (p *Profile) Sons() []string {
	return []string{"symbols"}
}
