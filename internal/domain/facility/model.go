package facility

// Facility is a CLUES catalog entry.
type Facility struct {
	CLUES                  string  `json:"clues"`
	NombreUnidad           *string `json:"nombre_unidad"`
	Entidad                *string `json:"entidad"`
	Municipio              *string `json:"municipio"`
	NivelAtencion          *string `json:"nivel_atencion"`
	Direccion              *string `json:"direccion_unidad"`
	TipoEstablecimiento    *string `json:"tipo_establecimiento"`
	SubtipoEstablecimiento *string `json:"subtipo_establecimiento"`
	Region                 *string `json:"region"`
}

// RegionQuota is the headcount target for a region.
type RegionQuota struct {
	Entidad string `json:"entidad"`
	Minimo  int    `json:"minimo"`
	Maximo  int    `json:"maximo"`
}
