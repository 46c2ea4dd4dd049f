package cleanups

type ListCleanupsQuery struct {
	Limit  int      `query:"limit" json:"limit,omitempty" default:"20" validate:"min=1,max=100"`
	Offset int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status []string `query:"status" json:"status,omitempty" validate:"dive,oneof=pending resolved dismissed failed"`
}
