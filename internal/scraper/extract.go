package scraper

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jackc/pgx/v5/pgtype"
)

// Extraction is a pure function of page content. Every field except URL and
// title is independently optional: a missing or malformed element leaves the
// field absent instead of failing the record. Selectors follow the AutoRia
// ad page markup.
const (
	selTitle      = "h1.head"
	selPrice      = ".price_value strong"
	selSellerName = ".seller_info_name"
	selPhotos     = "div.photo-620x465 img"
	selPlate      = "span.state-num"
	selVIN        = "span.label-vin, span.vin-code"
)

var (
	digitsRe   = regexp.MustCompile(`\d+`)
	thousandRe = regexp.MustCompile(`(\d+)\s*тис`)
	plateRe    = regexp.MustCompile(`[A-ZА-ЯІЇЄ]{2}\s?\d{4}\s?[A-ZА-ЯІЇЄ]{2}`)
	vinRe      = regexp.MustCompile(`[A-HJ-NPR-Z0-9]{17}`)
)

// Odometer readings above this are treated as bogus and capped.
const odometerCap = 999999

// Extract parses a fetched ad page into a ListingRecord. A page without a
// title is unusable and yields *ExtractError; anything else degrades to
// absent fields.
func Extract(url string, page []byte) (ListingRecord, error) {
	if url == "" {
		return ListingRecord{}, &ExtractError{URL: url, Reason: "empty url"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ListingRecord{}, &ExtractError{URL: url, Reason: "unparseable markup: " + err.Error()}
	}

	title := strings.TrimSpace(doc.Find(selTitle).First().Text())
	if title == "" {
		return ListingRecord{}, &ExtractError{URL: url, Reason: "missing title"}
	}

	rec := ListingRecord{
		URL:      url,
		Title:    title,
		PriceUSD: parseLenientInt(doc.Find(selPrice).First().Text()),
		Username: optText(doc.Find(selSellerName).First().Text()),
	}

	rec.Odometer = extractOdometer(doc)

	photos := doc.Find(selPhotos)
	if photos.Length() > 0 {
		if src, ok := photos.First().Attr("src"); ok && src != "" {
			rec.ImageURL = optText(src)
		}
		rec.ImagesCount = optInt(int64(photos.Length()))
	}

	rec.CarNumber = extractPlate(doc)
	rec.CarVIN = extractVIN(doc)
	rec.PhoneNumber = extractPhone(doc)

	return rec, nil
}

// extractOdometer finds the seller-reported mileage row and normalizes it to
// kilometers. "95 тис." style abbreviations multiply out to thousands.
func extractOdometer(doc *goquery.Document) pgtype.Int8 {
	var out pgtype.Int8
	doc.Find("span.label").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		if !strings.Contains(label.Text(), "Пробіг") {
			return true
		}
		arg := label.NextFiltered("span.argument")
		if arg.Length() == 0 {
			return false
		}
		out = normalizeOdometer(arg.Text())
		return false
	})
	return out
}

func normalizeOdometer(text string) pgtype.Int8 {
	if m := thousandRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return capOdometer(n * 1000)
		}
	}
	cleaned := strings.NewReplacer(" ", " ", "км", "", ",", "").Replace(text)
	joined := strings.Join(digitsRe.FindAllString(cleaned, -1), "")
	if joined == "" {
		return pgtype.Int8{}
	}
	n, err := strconv.ParseInt(joined, 10, 64)
	if err != nil {
		return pgtype.Int8{}
	}
	return capOdometer(n)
}

func capOdometer(n int64) pgtype.Int8 {
	if n > odometerCap {
		n = odometerCap
	}
	return optInt(n)
}

func extractPlate(doc *goquery.Document) pgtype.Text {
	raw := strings.TrimSpace(doc.Find(selPlate).First().Text())
	if raw == "" {
		return pgtype.Text{}
	}
	if m := plateRe.FindString(strings.ToUpper(raw)); m != "" {
		return optText(m)
	}
	return optText(raw)
}

// extractVIN looks at the dedicated VIN elements first, then falls back to a
// 17-character token anywhere in the page, gated on a "VIN" mention so that
// random hashes do not match.
func extractVIN(doc *goquery.Document) pgtype.Text {
	if m := vinRe.FindString(strings.TrimSpace(doc.Find(selVIN).Text())); m != "" {
		return optText(m)
	}
	body := doc.Text()
	if !strings.Contains(strings.ToUpper(body), "VIN") {
		return pgtype.Text{}
	}
	if m := vinRe.FindString(body); m != "" {
		return optText(m)
	}
	return pgtype.Text{}
}

// extractPhone picks up a seller phone when the page embeds one as a tel:
// link. The authenticated phone-reveal endpoint is out of pipeline scope, so
// pages without an embedded number simply leave the field absent.
func extractPhone(doc *goquery.Document) pgtype.Text {
	var phone pgtype.Text
	doc.Find("a[href^='tel:']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if digits := NormalizePhone(strings.TrimPrefix(href, "tel:")); digits != "" {
			phone = optText(digits)
			return false
		}
		return true
	})
	return phone
}

// NormalizePhone strips a phone number to digits and applies Ukrainian
// country-code prefixing: 0XXXXXXXXX becomes 380XXXXXXXXX.
func NormalizePhone(raw string) string {
	digits := strings.Join(digitsRe.FindAllString(raw, -1), "")
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "380"):
		return digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "38" + digits
	case strings.HasPrefix(digits, "80") && len(digits) == 11:
		return "3" + digits
	default:
		return digits
	}
}

// parseLenientInt strips text to digits before conversion; an empty result
// is an absent field, not an error.
func parseLenientInt(text string) pgtype.Int8 {
	joined := strings.Join(digitsRe.FindAllString(text, -1), "")
	if joined == "" {
		return pgtype.Int8{}
	}
	n, err := strconv.ParseInt(joined, 10, 64)
	if err != nil {
		return pgtype.Int8{}
	}
	return optInt(n)
}

func optInt(n int64) pgtype.Int8 {
	return pgtype.Int8{Int64: n, Valid: true}
}

func optText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
