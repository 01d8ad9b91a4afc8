// backend/normalizer/columns.go
package normalizer

// columnMapping maps the portal's native column headers to common-schema
// field names. The portal ships several header variants across its export
// screens, so most fields carry multiple aliases. Unmapped columns are
// dropped during normalization.
var columnMapping = map[string]string{
	// store
	"店舗ID": "store_id",
	"店舗名": "store_name",
	"店舗":  "store_name",

	// reservation dates and times
	"予約日":   "reserve_date",
	"来店日":   "reserve_date",
	"日付":    "reserve_date",
	"予約受付日": "booking_date",
	"受付日":   "booking_date",
	"登録日":   "booking_date",
	"予約時間":  "start_time",
	"開始時間":  "start_time",
	"時間":    "start_time",
	"終了時間":  "end_time",

	// reservation content
	"コース名":  "course_name",
	"プラン名":  "course_name",
	"メニュー名": "course_name",
	"コース":   "course_name",
	"人数":    "headcount",
	"名数":    "headcount",
	"予約者数":  "headcount",

	// channel and status
	"経路":      "channel",
	"媒体":      "channel",
	"流入元":     "channel",
	"予約ステータス": "status",
	"ステータス":   "status",
	"状態":      "status",

	// misc
	"予約番号": "reservation_id",
	"ID":   "reservation_id",
	"備考":   "note",
	"メモ":   "note",
}

// channelVocabulary canonicalizes the booking channel. Values outside the
// vocabulary fall back to the cleaned raw value.
var channelVocabulary = map[string]string{
	"ホットペッパー":    "hotpepper",
	"ホットペッパーグルメ": "hotpepper",
	"hot pepper": "hotpepper",
	"hotpepper":  "hotpepper",
	"電話":         "phone",
	"tel":        "phone",
	"phone":      "phone",
	"web":        "web",
	"ウェブ":        "web",
	"ネット":        "web",
	"ウォークイン":     "walk_in",
	"walk-in":    "walk_in",
	"walkin":     "walk_in",
	"instagram":  "instagram",
	"google":     "google",
	"ぐるなび":       "gurunavi",
	"食べログ":       "tabelog",
}

// statusVocabulary canonicalizes the reservation status. The portal's
// cancellation wording is inconsistent across screens; unknown values pass
// through cleaned rather than being rejected.
var statusVocabulary = map[string]string{
	"確定":        "confirmed",
	"予約確定":      "confirmed",
	"confirmed": "confirmed",
	"仮予約":       "tentative",
	"tentative": "tentative",
	"キャンセル":     "cancelled",
	"取消":        "cancelled",
	"取り消し":      "cancelled",
	"cancel":    "cancelled",
	"canceled":  "cancelled",
	"cancelled": "cancelled",
	"来店":        "visited",
	"来店済み":      "visited",
	"visited":   "visited",
	"ノーショー":     "no_show",
	"no show":   "no_show",
	"no-show":   "no_show",
}
