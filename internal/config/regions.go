package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"channel-clock/internal/availability"
	"channel-clock/internal/models"
)

// WindowSpec is one configured availability window, e.g. {09:30, 11:30, working}.
// Minutes not covered by any window are off-hours.
type WindowSpec struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	State string `yaml:"state"`
}

// RegionSpec is the YAML form of a tracked region.
type RegionSpec struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Timezone     string `yaml:"timezone"`
	Emoji        string `yaml:"emoji"`
	EntityID     string `yaml:"entity_id"`
	CalendarCode string `yaml:"calendar"`

	// HolidayFeed is an ICS URL; Holidays are extra dates (YYYY-MM-DD -> name)
	// that win over the feed.
	HolidayFeed string            `yaml:"holiday_feed"`
	Holidays    map[string]string `yaml:"holidays"`

	RestingText    string `yaml:"resting_text"`
	NightIndicator string `yaml:"night_indicator"`

	Saturday                models.DayLabel            `yaml:"saturday"`
	Sunday                  models.DayLabel            `yaml:"sunday"`
	HolidayLabels           map[string]models.DayLabel `yaml:"holiday_labels"`
	DefaultHolidayIndicator string                     `yaml:"default_holiday_indicator"`

	Windows    []WindowSpec      `yaml:"windows"`
	Indicators map[string]string `yaml:"indicators"`
}

// RegionsFile is the top-level layout of REGIONS_FILE.
type RegionsFile struct {
	Reference string       `yaml:"reference"`
	Regions   []RegionSpec `yaml:"regions"`
}

const (
	seoulHolidayFeed = "https://calendar.google.com/calendar/ical/ko.south_korea%23holiday%40group.v.calendar.google.com/public/basic.ics"
	hcmcHolidayFeed  = "https://calendar.google.com/calendar/ical/vi.vietnamese%23holiday%40group.v.calendar.google.com/public/basic.ics"
)

// DefaultRegions returns the built-in SEOUL and HCMC regions. Entity ids are
// left empty and come from SEOUL_CHANNEL_ID / HCMC_CHANNEL_ID.
func DefaultRegions() RegionsFile {
	return RegionsFile{
		Reference: "SEOUL",
		Regions: []RegionSpec{
			{
				ID:           "SEOUL",
				Name:         "서울",
				Timezone:     "Asia/Seoul",
				Emoji:        "🇰🇷",
				CalendarCode: "KR",
				HolidayFeed:  seoulHolidayFeed,
				RestingText:  "휴식",
				HolidayLabels: map[string]models.DayLabel{
					"현충일":      {Indicator: "🇰🇷"},
					"광복절":      {Indicator: "🇰🇷"},
					"삼일절":      {Indicator: "🇰🇷"},
					"제헌절":      {Indicator: "🇰🇷"},
					"개천절":      {Indicator: "🇰🇷"},
					"한글날":      {Indicator: "🇰🇷"},
					"설날":       {Indicator: "🧧"},
					"설날 전날":    {Indicator: "🧧"},
					"설날 다음날":   {Indicator: "🧧"},
					"설날 대체 휴일": {Text: "설날 대체", Indicator: "🧧"},
					"신정":       {Indicator: "🎉"},
					"신정연휴":     {Indicator: "🎉"},
					"어린이날":     {Indicator: "🎈"},
					"부처님오신날":   {Indicator: "🙏"},
					"추석":       {Indicator: "🌕"},
					"추석 전날":    {Indicator: "🌕"},
					"추석 다음날":   {Indicator: "🌕"},
					"추석 대체 휴일": {Text: "추석 대체", Indicator: "🌕"},
					"기독탄신일":    {Indicator: "🎄"},
					"국회의원 선거일": {Text: "선거일", Indicator: "🗳️"},
					"대통령선거":    {Indicator: "🗳️"},
					"지방선거":     {Indicator: "🗳️"},
				},
				Windows: []WindowSpec{
					{Start: "09:30", End: "11:30", State: "working"},
					{Start: "11:30", End: "12:30", State: "lunch"},
					{Start: "12:30", End: "18:30", State: "working"},
				},
			},
			{
				ID:           "HCMC",
				Name:         "호치민",
				Timezone:     "Asia/Ho_Chi_Minh",
				Emoji:        "🇻🇳",
				CalendarCode: "VN",
				HolidayFeed:  hcmcHolidayFeed,
				RestingText:  "Nghỉ",
				HolidayLabels: map[string]models.DayLabel{
					"Tết Dương lịch":           {Indicator: "🎉"},
					"29 Tết":                   {Indicator: "🧧"},
					"Giao thừa Tết Nguyên Đán": {Text: "Tết Eve", Indicator: "🧧"},
					"Tết Nguyên Đán":           {Indicator: "🧧"},
					"Mùng hai Tết Nguyên Đán":  {Text: "Tết Day2", Indicator: "🧧"},
					"Mùng ba Tết Nguyên Đán":   {Text: "Tết Day3", Indicator: "🧧"},
					"Mùng bốn Tết Nguyên Đán":  {Text: "Tết Day4", Indicator: "🧧"},
					"Mùng năm Tết Nguyên Đán":  {Text: "Tết Day5", Indicator: "🧧"},
					"Ngày Giỗ Tổ Hùng Vương":   {Text: "Hùng Vương", Indicator: "🇻🇳"},
					"Ngày Chiến thắng":         {Indicator: "🇻🇳"},
					"Quốc khánh":               {Indicator: "🇻🇳"},
					"Ngày Quốc tế Lao động":    {Text: "Labor Day", Indicator: "👷"},
				},
				Windows: []WindowSpec{
					{Start: "08:30", End: "12:00", State: "working"},
					{Start: "12:00", End: "13:30", State: "lunch"},
					{Start: "13:30", End: "17:30", State: "working"},
				},
			},
		},
	}
}

// Normalize fills in missing presentation values with defaults.
func (s *RegionSpec) Normalize() {
	s.ID = strings.ToUpper(strings.TrimSpace(s.ID))
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.CalendarCode == "" {
		s.CalendarCode = s.ID
	}
	if s.RestingText == "" {
		s.RestingText = "Resting"
	}
	if s.NightIndicator == "" {
		s.NightIndicator = "🌙"
	}
	if s.Saturday == (models.DayLabel{}) {
		s.Saturday = models.DayLabel{Text: "토요일", Indicator: "🌤️"}
	}
	if s.Sunday == (models.DayLabel{}) {
		s.Sunday = models.DayLabel{Text: "일요일", Indicator: "☀️"}
	}
	if s.DefaultHolidayIndicator == "" {
		s.DefaultHolidayIndicator = "🗓️"
	}
}

// LoadRegions reads a regions file, or returns the built-in regions when path is empty.
func LoadRegions(path string) (RegionsFile, error) {
	if path == "" {
		return DefaultRegions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RegionsFile{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	var file RegionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return RegionsFile{}, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	if len(file.Regions) == 0 {
		return RegionsFile{}, fmt.Errorf("%w: %s defines no regions", ErrConfig, path)
	}
	return file, nil
}

// BuildRegion validates spec and turns it into an immutable region.
func BuildRegion(spec RegionSpec) (*models.Region, error) {
	spec.Normalize()
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: region without id", ErrConfig)
	}
	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil || spec.Timezone == "" {
		return nil, fmt.Errorf("%w: region %s: timezone %q", ErrConfig, spec.ID, spec.Timezone)
	}

	windows := make([]availability.Window, 0, len(spec.Windows))
	for _, ws := range spec.Windows {
		w, err := parseWindow(ws)
		if err != nil {
			return nil, fmt.Errorf("%w: region %s: %v", ErrConfig, spec.ID, err)
		}
		windows = append(windows, w)
	}
	table, err := availability.NewTable(availability.Fill(windows))
	if err != nil {
		return nil, fmt.Errorf("%w: region %s: %v", ErrConfig, spec.ID, err)
	}

	indicators := make(map[availability.State]string, len(availability.DefaultIndicators))
	for state, emoji := range availability.DefaultIndicators {
		indicators[state] = emoji
	}
	for name, emoji := range spec.Indicators {
		state, err := availability.ParseState(name)
		if err != nil {
			return nil, fmt.Errorf("%w: region %s: %v", ErrConfig, spec.ID, err)
		}
		indicators[state] = emoji
	}

	labels := make(map[string]models.DayLabel, len(spec.HolidayLabels))
	for name, l := range spec.HolidayLabels {
		labels[name] = l
	}

	return &models.Region{
		ID:                      spec.ID,
		Name:                    spec.Name,
		Timezone:                spec.Timezone,
		Location:                loc,
		Emoji:                   spec.Emoji,
		EntityID:                spec.EntityID,
		CalendarCode:            spec.CalendarCode,
		RestingText:             spec.RestingText,
		NightIndicator:          spec.NightIndicator,
		Saturday:                spec.Saturday,
		Sunday:                  spec.Sunday,
		HolidayLabels:           labels,
		DefaultHolidayIndicator: spec.DefaultHolidayIndicator,
		Availability:            table,
		Indicators:              indicators,
	}, nil
}

// Regions loads, overrides and validates every configured region. Entity ids
// may be supplied as <ID>_CHANNEL_ID. The reference region is returned first.
func (c *Config) Regions() ([]*models.Region, RegionsFile, error) {
	file, err := LoadRegions(c.RegionsFile)
	if err != nil {
		return nil, file, err
	}
	if c.ReferenceRegion != "" {
		file.Reference = c.ReferenceRegion
	}
	file.Reference = strings.ToUpper(file.Reference)

	seen := make(map[string]bool, len(file.Regions))
	regions := make([]*models.Region, 0, len(file.Regions))
	for i := range file.Regions {
		spec := &file.Regions[i]
		spec.Normalize()
		if v := os.Getenv(spec.ID + "_CHANNEL_ID"); v != "" {
			spec.EntityID = v
		}
		if spec.EntityID == "" {
			return nil, file, fmt.Errorf("%w: %s_CHANNEL_ID is required", ErrConfig, spec.ID)
		}
		if seen[spec.ID] {
			return nil, file, fmt.Errorf("%w: duplicate region %s", ErrConfig, spec.ID)
		}
		seen[spec.ID] = true

		r, err := BuildRegion(*spec)
		if err != nil {
			return nil, file, err
		}
		if r.ID == file.Reference {
			regions = append([]*models.Region{r}, regions...)
		} else {
			regions = append(regions, r)
		}
	}
	if file.Reference == "" {
		file.Reference = regions[0].ID
	}
	if !seen[file.Reference] {
		return nil, file, fmt.Errorf("%w: reference region %s is not configured", ErrConfig, file.Reference)
	}
	return regions, file, nil
}

func parseWindow(ws WindowSpec) (availability.Window, error) {
	start, err := availability.ParseClock(ws.Start)
	if err != nil {
		return availability.Window{}, err
	}
	end, err := availability.ParseClock(ws.End)
	if err != nil {
		return availability.Window{}, err
	}
	state, err := availability.ParseState(ws.State)
	if err != nil {
		return availability.Window{}, err
	}
	return availability.Window{Start: start, End: end, State: state}, nil
}
