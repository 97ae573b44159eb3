package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveArea(t *testing.T) {
	tests := []struct {
		name     string
		delivery Delivery
		want     AreaResolution
	}{
		{
			name:     "structured fields",
			delivery: Delivery{Sido: "서울", Sigungu: "강남구", Dong: "역삼동"},
			want:     resolved(Area{Sido: "서울특별시", Sigungu: "강남구", Dong: "역삼동"}),
		},
		{
			name:     "free text with province",
			delivery: Delivery{Address: "경기 성남시 분당구 정자동 178-1 101동 1203호"},
			want:     resolved(Area{Sido: "경기도", Sigungu: "성남시", Dong: "정자동"}),
		},
		{
			name:     "free text with known district only",
			delivery: Delivery{Address: "마포구 합정동 381-2"},
			want:     resolved(Area{Sido: "서울특별시", Sigungu: "마포구", Dong: "합정동"}),
		},
		{
			name:     "ambiguous district without province",
			delivery: Delivery{Address: "중구 태평로1가 31"},
			want:     unresolved(ReasonProvinceNotFound),
		},
		{
			name:     "province without district",
			delivery: Delivery{Address: "부산 어딘가 123"},
			want:     unresolved(ReasonDistrictNotFound),
		},
		{
			name:     "sejong has no district",
			delivery: Delivery{Address: "세종특별자치시 한누리대로 2130 보람동"},
			want:     resolved(Area{Sido: "세종특별자치시", Dong: "보람동"}),
		},
		{
			name:     "empty",
			delivery: Delivery{},
			want:     unresolved(ReasonEmptyAddress),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveArea(tt.delivery))
		})
	}
}

func TestAreaKey(t *testing.T) {
	assert.Equal(t, "서울특별시 강남구", Area{Sido: "서울특별시", Sigungu: "강남구"}.Key())
	assert.Equal(t, "세종특별자치시", Area{Sido: "세종특별자치시"}.Key())
}
