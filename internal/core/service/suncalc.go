package service

import (
	"errors"
	"math"
	"time"

	"smartsched/internal/core/domain"
)

const (
	// Sun disc radius plus atmospheric refraction, the standard NOAA
	// horizon correction.
	sunriseElevationDeg = -0.833
	earthObliquityDeg   = 23.4397
	julianEpochJ2000    = 2451545.0
	unixEpochJulianDay  = 2440587.5
)

// SunTimesFor computes local sunrise and sunset for the calendar day of
// date in loc, using the NOAA solar position equations. It never fails on
// valid coordinates: polar days and nights are reported through the
// sentinel flags instead. All returned instants carry loc as timezone.
func SunTimesFor(latitude, longitude float64, date time.Time, loc *time.Location) (domain.SunTimes, error) {
	if latitude < -90 || latitude > 90 {
		return domain.SunTimes{}, errors.New("suncalc: latitude out of range [-90, 90]")
	}
	if longitude < -180 || longitude > 180 {
		return domain.SunTimes{}, errors.New("suncalc: longitude out of range [-180, 180]")
	}

	// Anchor on local noon so the Julian day lands on the right calendar
	// day regardless of timezone offset.
	year, month, day := date.In(loc).Date()
	localNoon := time.Date(year, month, day, 12, 0, 0, 0, loc)
	n := math.Round(timeToJulian(localNoon) - julianEpochJ2000)

	// mean solar noon at the given longitude
	meanSolarTime := n + 0.0008 - longitude/360.0

	meanAnomalyDeg := math.Mod(357.5291+0.98560028*meanSolarTime, 360)
	meanAnomaly := radians(meanAnomalyDeg)
	center := 1.9148*math.Sin(meanAnomaly) + 0.02*math.Sin(2*meanAnomaly) + 0.0003*math.Sin(3*meanAnomaly)
	eclipticLongitude := radians(math.Mod(meanAnomalyDeg+center+180+102.9372, 360))

	julianTransit := julianEpochJ2000 + meanSolarTime +
		0.0053*math.Sin(meanAnomaly) - 0.0069*math.Sin(2*eclipticLongitude)

	declination := math.Asin(math.Sin(eclipticLongitude) * math.Sin(radians(earthObliquityDeg)))
	latRad := radians(latitude)

	cosHourAngle := (math.Sin(radians(sunriseElevationDeg)) - math.Sin(latRad)*math.Sin(declination)) /
		(math.Cos(latRad) * math.Cos(declination))

	// sun never crosses the horizon today
	if cosHourAngle > 1 {
		return domain.SunTimes{PolarNight: true}, nil
	}
	if cosHourAngle < -1 {
		return domain.SunTimes{PolarDay: true}, nil
	}

	hourAngleDeg := degrees(math.Acos(cosHourAngle))

	return domain.SunTimes{
		Sunrise: julianToTime(julianTransit - hourAngleDeg/360).In(loc),
		Sunset:  julianToTime(julianTransit + hourAngleDeg/360).In(loc),
	}, nil
}

func timeToJulian(t time.Time) float64 {
	return float64(t.UnixMilli())/86400000.0 + unixEpochJulianDay
}

func julianToTime(jd float64) time.Time {
	return time.UnixMilli(int64(math.Round((jd - unixEpochJulianDay) * 86400000.0))).UTC()
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
