package httpx

import (
	"fmt"
	"math/rand"
)

// The User-Agent is randomized once per client construction: a weighted
// browser pick crossed with a random OS platform string and a random
// version within the browser's plausible range.

var desktopPlatforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Windows NT 10.0; WOW64",
	"Windows NT 6.1; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"Macintosh; Intel Mac OS X 13_4",
	"Macintosh; Intel Mac OS X 14_2",
	"X11; Linux x86_64",
	"X11; Ubuntu; Linux x86_64",
	"X11; Fedora; Linux x86_64",
	"Windows NT 11.0; Win64; x64",
}

var mobilePlatforms = []string{
	"iPhone; CPU iPhone OS 16_5 like Mac OS X",
	"iPhone; CPU iPhone OS 17_1 like Mac OS X",
	"iPad; CPU OS 16_3 like Mac OS X",
	"Linux; Android 13; SM-G991B",
	"Linux; Android 14; SM-S918B",
	"Linux; Android 12; Pixel 6",
}

type browserKind int

const (
	browserChrome browserKind = iota
	browserFirefox
	browserEdge
	browserSafariDesktop
	browserSafariMobile
	browserSamsung
	browserOpera
	browserBrave
	browserVivaldi
)

// Weighted distribution; the remainder falls through to Chrome.
var browserWeights = []struct {
	kind   browserKind
	weight int
}{
	{browserChrome, 40},
	{browserFirefox, 15},
	{browserEdge, 10},
	{browserSafariDesktop, 5},
	{browserSafariMobile, 5},
	{browserSamsung, 5},
	{browserOpera, 5},
	{browserBrave, 5},
	{browserVivaldi, 5},
}

// RandomUserAgent returns a weighted-random User-Agent string.
func RandomUserAgent(rng *rand.Rand) string {
	kind := browserChrome
	roll := rng.Intn(100)
	for _, bw := range browserWeights {
		if roll < bw.weight {
			kind = bw.kind
			break
		}
		roll -= bw.weight
	}

	desktop := desktopPlatforms[rng.Intn(len(desktopPlatforms))]
	mobile := mobilePlatforms[rng.Intn(len(mobilePlatforms))]
	chromeMajor := 108 + rng.Intn(25)
	chromeBuild := rng.Intn(6500)
	chromeVer := fmt.Sprintf("%d.0.%d.%d", chromeMajor, chromeBuild, rng.Intn(200))

	switch kind {
	case browserFirefox:
		v := 102 + rng.Intn(28)
		return fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", desktop, v, v)
	case browserEdge:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36 Edg/%d.0.%d.%d",
			desktop, chromeVer, chromeMajor, 1000+rng.Intn(1500), rng.Intn(100))
	case browserSafariDesktop:
		mac := desktopPlatforms[3+rng.Intn(3)]
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%d.%d Safari/605.1.15",
			mac, 15+rng.Intn(3), rng.Intn(6))
	case browserSafariMobile:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%d.%d Mobile/15E148 Safari/604.1",
			mobilePlatforms[rng.Intn(3)], 15+rng.Intn(3), rng.Intn(6))
	case browserSamsung:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/%d.%d Chrome/%s Mobile Safari/537.36",
			mobile, 19+rng.Intn(6), rng.Intn(3), chromeVer)
	case browserOpera:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36 OPR/%d.0.0.0",
			desktop, chromeVer, 90+rng.Intn(20))
	case browserBrave:
		// Brave ships the stock Chrome UA.
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			desktop, chromeVer)
	case browserVivaldi:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36 Vivaldi/%d.%d",
			desktop, chromeVer, 5+rng.Intn(3), rng.Intn(9))
	default:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			desktop, chromeVer)
	}
}
