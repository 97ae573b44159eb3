package services

import (
	"regexp"
	"strings"
)

// Unresolved reasons.
const (
	ReasonEmptyAddress     = "empty_address"
	ReasonProvinceNotFound = "province_not_found"
	ReasonDistrictNotFound = "district_not_found"
)

const sejong = "세종특별자치시"

// provinces maps every accepted spelling to the canonical province name.
var provinces = map[string]string{
	"서울특별시": "서울특별시", "서울시": "서울특별시", "서울": "서울특별시",
	"부산광역시": "부산광역시", "부산시": "부산광역시", "부산": "부산광역시",
	"대구광역시": "대구광역시", "대구시": "대구광역시", "대구": "대구광역시",
	"인천광역시": "인천광역시", "인천시": "인천광역시", "인천": "인천광역시",
	"광주광역시": "광주광역시", "광주": "광주광역시",
	"대전광역시": "대전광역시", "대전시": "대전광역시", "대전": "대전광역시",
	"울산광역시": "울산광역시", "울산시": "울산광역시", "울산": "울산광역시",
	"세종특별자치시": sejong, "세종시": sejong, "세종": sejong,
	"경기도": "경기도", "경기": "경기도",
	"강원특별자치도": "강원특별자치도", "강원도": "강원특별자치도", "강원": "강원특별자치도",
	"충청북도": "충청북도", "충북": "충청북도",
	"충청남도": "충청남도", "충남": "충청남도",
	"전북특별자치도": "전북특별자치도", "전라북도": "전북특별자치도", "전북": "전북특별자치도",
	"전라남도": "전라남도", "전남": "전라남도",
	"경상북도": "경상북도", "경북": "경상북도",
	"경상남도": "경상남도", "경남": "경상남도",
	"제주특별자치도": "제주특별자치도", "제주도": "제주특별자치도", "제주": "제주특별자치도",
}

// districts lists sigungu names that exist in exactly one province, so an
// address written without its province can still be placed. Names shared by
// several provinces (중구, 동구, 서구, 남구, 북구, 강서구, 고성군) are left out.
var districts = map[string]string{
	"강남구": "서울특별시", "강동구": "서울특별시", "강북구": "서울특별시", "관악구": "서울특별시",
	"광진구": "서울특별시", "구로구": "서울특별시", "금천구": "서울특별시", "노원구": "서울특별시",
	"도봉구": "서울특별시", "동대문구": "서울특별시", "동작구": "서울특별시", "마포구": "서울특별시",
	"서대문구": "서울특별시", "서초구": "서울특별시", "성동구": "서울특별시", "성북구": "서울특별시",
	"송파구": "서울특별시", "양천구": "서울특별시", "영등포구": "서울특별시", "용산구": "서울특별시",
	"은평구": "서울특별시", "종로구": "서울특별시", "중랑구": "서울특별시",
	"해운대구": "부산광역시", "수영구": "부산광역시", "사하구": "부산광역시", "금정구": "부산광역시",
	"연제구": "부산광역시", "부산진구": "부산광역시", "사상구": "부산광역시", "기장군": "부산광역시",
	"수성구": "대구광역시", "달서구": "대구광역시", "달성군": "대구광역시",
	"연수구": "인천광역시", "남동구": "인천광역시", "부평구": "인천광역시", "계양구": "인천광역시",
	"미추홀구": "인천광역시", "강화군": "인천광역시", "옹진군": "인천광역시",
	"광산구": "광주광역시", "유성구": "대전광역시", "대덕구": "대전광역시", "울주군": "울산광역시",
	"수원시": "경기도", "성남시": "경기도", "고양시": "경기도", "용인시": "경기도", "부천시": "경기도",
	"안산시": "경기도", "안양시": "경기도", "남양주시": "경기도", "화성시": "경기도", "평택시": "경기도",
	"의정부시": "경기도", "시흥시": "경기도", "파주시": "경기도", "김포시": "경기도", "광명시": "경기도",
	"군포시": "경기도", "하남시": "경기도", "오산시": "경기도", "이천시": "경기도", "구리시": "경기도",
	"춘천시": "강원특별자치도", "원주시": "강원특별자치도", "강릉시": "강원특별자치도",
	"청주시": "충청북도", "충주시": "충청북도", "제천시": "충청북도",
	"천안시": "충청남도", "아산시": "충청남도", "공주시": "충청남도", "논산시": "충청남도",
	"전주시": "전북특별자치도", "익산시": "전북특별자치도", "군산시": "전북특별자치도",
	"목포시": "전라남도", "여수시": "전라남도", "순천시": "전라남도",
	"포항시": "경상북도", "구미시": "경상북도", "경주시": "경상북도", "안동시": "경상북도",
	"창원시": "경상남도", "김해시": "경상남도", "진주시": "경상남도", "양산시": "경상남도",
	"제주시": "제주특별자치도", "서귀포시": "제주특별자치도",
}

var (
	dongPattern    = regexp.MustCompile(`^[가-힣][가-힣0-9.·]*[읍면동]$`)
	sigunguPattern = regexp.MustCompile(`^[가-힣]+[시군구]$`)
)

// Area is a resolved delivery region.
type Area struct {
	Sido    string `json:"sido"`
	Sigungu string `json:"sigungu"`
	Dong    string `json:"dong,omitempty"`
}

// Key is the "{sido} {sigungu}" form stores list in their service areas.
func (a Area) Key() string {
	if a.Sigungu == "" {
		return a.Sido
	}
	return a.Sido + " " + a.Sigungu
}

// AreaResolution is either a resolved Area or the reason resolution failed.
type AreaResolution struct {
	Resolved bool   `json:"resolved"`
	Area     Area   `json:"area"`
	Reason   string `json:"reason,omitempty"`
}

func resolved(a Area) AreaResolution {
	return AreaResolution{Resolved: true, Area: a}
}

func unresolved(reason string) AreaResolution {
	return AreaResolution{Reason: reason}
}

// CanonicalProvince maps a province spelling to its official name.
func CanonicalProvince(name string) (string, bool) {
	canonical, ok := provinces[strings.TrimSpace(name)]
	return canonical, ok
}

// ResolveArea derives the area key of a delivery. Structured fields win; the
// free-text address is scanned only for what they leave out.
func ResolveArea(d Delivery) AreaResolution {
	area := Area{Sigungu: strings.TrimSpace(d.Sigungu), Dong: strings.TrimSpace(d.Dong)}
	if sido, ok := CanonicalProvince(d.Sido); ok {
		area.Sido = sido
	}

	if area.Sido != "" && (area.Sigungu != "" || area.Sido == sejong) {
		if area.Dong == "" {
			area.Dong = scanDong(strings.Fields(d.Address))
		}
		return resolved(area)
	}

	tokens := strings.Fields(strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(d.Address))
	if len(tokens) == 0 && area.Sido == "" && area.Sigungu == "" {
		return unresolved(ReasonEmptyAddress)
	}

	sidoAt := -1
	if area.Sido == "" {
		for i, tok := range tokens {
			if sido, ok := provinces[tok]; ok {
				area.Sido, sidoAt = sido, i
				break
			}
		}
	}

	if area.Sigungu == "" {
		for i := sidoAt + 1; i < len(tokens); i++ {
			tok := tokens[i]
			if _, isProvince := provinces[tok]; isProvince {
				continue
			}
			if sigunguPattern.MatchString(tok) && !dongPattern.MatchString(tok) {
				area.Sigungu = tok
				break
			}
		}
	}

	if area.Sido == "" && area.Sigungu != "" {
		if sido, ok := districts[area.Sigungu]; ok {
			area.Sido = sido
		}
	}

	if area.Dong == "" {
		area.Dong = scanDong(tokens)
	}

	switch {
	case area.Sido == "":
		return unresolved(ReasonProvinceNotFound)
	case area.Sigungu == "" && area.Sido != sejong:
		return unresolved(ReasonDistrictNotFound)
	}
	return resolved(area)
}

// scanDong returns the last 읍/면/동 token. Building numbers such as "101동" never match.
func scanDong(tokens []string) string {
	for i := len(tokens) - 1; i >= 0; i-- {
		if dongPattern.MatchString(tokens[i]) {
			return tokens[i]
		}
	}
	return ""
}
