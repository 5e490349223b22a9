package day

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Expand substitutes day placeholders in template:
// {yyyy} {yy} {ddd} {mm} {dd} {date} {day} {gpsweek} {gpsdow}.
func Expand(template string, d Day) string {
	if !strings.Contains(template, "{") {
		return template
	}
	t := d.Time()
	week, dow := d.GPSWeek()
	replacer := strings.NewReplacer(
		"{yyyy}", fmt.Sprintf("%04d", d.Year),
		"{yy}", fmt.Sprintf("%02d", d.Year%100),
		"{ddd}", fmt.Sprintf("%03d", d.DOY),
		"{mm}", fmt.Sprintf("%02d", int(t.Month())),
		"{dd}", fmt.Sprintf("%02d", t.Day()),
		"{date}", d.ISO(),
		"{day}", d.String(),
		"{gpsweek}", fmt.Sprintf("%04d", week),
		"{gpsdow}", fmt.Sprintf("%d", dow),
	)
	return replacer.Replace(template)
}

// StaticDir returns the leading directories of a path template that contain
// no placeholder, e.g. "/data/{yyyy}/out" gives "/data".
func StaticDir(template string) string {
	i := strings.Index(template, "{")
	if i < 0 {
		return filepath.Clean(template)
	}
	prefix := template[:i]
	if j := strings.LastIndexAny(prefix, "/\\"); j >= 0 {
		if j == 0 {
			return string(filepath.Separator)
		}
		return filepath.Clean(prefix[:j])
	}
	return "."
}

// Env returns the DAYRUN_* environment entries describing d.
func Env(d Day) []string {
	week, dow := d.GPSWeek()
	return []string{
		"DAYRUN_DAY=" + d.String(),
		"DAYRUN_DATE=" + d.ISO(),
		fmt.Sprintf("DAYRUN_YEAR=%04d", d.Year),
		fmt.Sprintf("DAYRUN_DOY=%03d", d.DOY),
		fmt.Sprintf("DAYRUN_GPSWEEK=%04d", week),
		fmt.Sprintf("DAYRUN_GPSDOW=%d", dow),
	}
}
